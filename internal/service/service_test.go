package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domusnext/eval/internal/config"
	"github.com/domusnext/eval/internal/domain"
	store "github.com/domusnext/eval/internal/repository"
	"github.com/domusnext/eval/tests/helpers"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.FeedEvent
}

func (p *recordingPublisher) Publish(_ string, event domain.FeedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []domain.FeedEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.FeedEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// fakeClock advances one millisecond per call so ordering by time is stable.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type testEnv struct {
	svc       *Service
	store     *store.SQLiteStore
	publisher *recordingPublisher
	clock     *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := helpers.NewTestSQLiteStore(t)
	pub := &recordingPublisher{}
	clock := newFakeClock()

	exec := NewSyntheticExecutor(db, pub, nil)
	exec.now = clock.Now
	exec.latency = func() time.Duration { return 750 * time.Millisecond }

	svc := New(db, exec, nil, pub, nil, config.Default(), nil)
	svc.now = clock.Now
	return &testEnv{svc: svc, store: db, publisher: pub, clock: clock}
}

func strPtr(s string) *string { return &s }

func (e *testEnv) seed(t *testing.T, contexts int, casesPer int) (string, []string, [][]string) {
	t.Helper()
	ctx := context.Background()
	versionID, err := e.svc.CreateVersion(ctx, domain.VersionInput{})
	require.NoError(t, err)

	contextIDs := make([]string, contexts)
	caseIDs := make([][]string, contexts)
	for i := range contexts {
		contextIDs[i], err = e.svc.CreateContext(ctx, domain.ContextInput{})
		require.NoError(t, err)
		for range casesPer {
			id, err := e.svc.CreateCase(ctx, domain.CaseInput{
				ContextID:   contextIDs[i],
				UserMessage: json.RawMessage(`{"role":"user","content":"ping"}`),
			})
			require.NoError(t, err)
			caseIDs[i] = append(caseIDs[i], id)
		}
	}
	return versionID, contextIDs, caseIDs
}

func findCase(t *testing.T, tree []domain.Version, versionID, caseID string) domain.Case {
	t.Helper()
	for _, v := range tree {
		if v.ID != versionID {
			continue
		}
		for _, c := range v.Contexts {
			for _, k := range c.Cases {
				if k.ID == caseID {
					return k
				}
			}
		}
	}
	t.Fatalf("case %s not found in version %s", caseID, versionID)
	return domain.Case{}
}

func TestFetchTreeEmpty(t *testing.T) {
	env := newTestEnv(t)

	tree, err := env.svc.FetchTree(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tree)
	assert.Empty(t, tree)
}

func TestCreateDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	versionID, err := env.svc.CreateVersion(ctx, domain.VersionInput{})
	require.NoError(t, err)
	contextID, err := env.svc.CreateContext(ctx, domain.ContextInput{})
	require.NoError(t, err)
	caseID, err := env.svc.CreateCase(ctx, domain.CaseInput{ContextID: contextID})
	require.NoError(t, err)

	tree, err := env.svc.FetchTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, versionID, tree[0].ID)
	assert.Equal(t, domain.DefaultVersionLabel, tree[0].Label)
	require.Len(t, tree[0].Contexts, 1)
	assert.Equal(t, domain.DefaultContextName, tree[0].Contexts[0].Name)
	assert.Empty(t, tree[0].Contexts[0].Params)
	assert.Empty(t, tree[0].Contexts[0].Headers)

	kase := findCase(t, tree, versionID, caseID)
	assert.Equal(t, domain.DefaultCaseTitle, kase.Title)
	assert.Equal(t, "user", kase.UserMessage.Role)
	assert.Equal(t, "", kase.UserMessage.Content.Text())
	assert.Nil(t, kase.AssistantMessage)
	assert.Nil(t, kase.LastRunSummary)
}

func TestCreateKeepsExplicitBlankNames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	versionID, err := env.svc.CreateVersion(ctx, domain.VersionInput{Label: strPtr("")})
	require.NoError(t, err)
	contextID, err := env.svc.CreateContext(ctx, domain.ContextInput{Name: strPtr("")})
	require.NoError(t, err)
	caseID, err := env.svc.CreateCase(ctx, domain.CaseInput{ContextID: contextID, Title: strPtr("")})
	require.NoError(t, err)

	tree, err := env.svc.FetchTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "", tree[0].Label)
	require.Len(t, tree[0].Contexts, 1)
	assert.Equal(t, "", tree[0].Contexts[0].Name)
	assert.Equal(t, "", findCase(t, tree, versionID, caseID).Title)
}

func TestCreateCaseRequiresContextID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateCase(context.Background(), domain.CaseInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Missing contextId", err.Error())
}

func TestCreateContextRejectsNonObjectParams(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateContext(context.Background(), domain.ContextInput{Params: json.RawMessage(`[1,2]`)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.svc.CreateContext(context.Background(), domain.ContextInput{Headers: json.RawMessage(`{"a":1}`)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateCaseRejectsUnknownPartType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	contextID, err := env.svc.CreateContext(ctx, domain.ContextInput{})
	require.NoError(t, err)

	_, err = env.svc.CreateCase(ctx, domain.CaseInput{
		ContextID:   contextID,
		UserMessage: json.RawMessage(`{"role":"user","content":[{"type":"video","url":"x"}]}`),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateContextPartial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	contextID, err := env.svc.CreateContext(ctx, domain.ContextInput{
		Name:        strPtr("Family"),
		Description: strPtr("household"),
		Params:      json.RawMessage(`{"locale":"en"}`),
		Headers:     json.RawMessage(`{"X-User-ID":"u1"}`),
	})
	require.NoError(t, err)
	before, err := env.store.GetContext(ctx, contextID)
	require.NoError(t, err)

	var patch domain.ContextPatch
	require.NoError(t, json.Unmarshal([]byte(`{"name":"X"}`), &patch))
	require.NoError(t, env.svc.UpdateContext(ctx, contextID, patch))

	after, err := env.store.GetContext(ctx, contextID)
	require.NoError(t, err)
	assert.Equal(t, "X", after.Name)
	assert.Equal(t, before.Description, after.Description)
	assert.JSONEq(t, before.ParamsJSON, after.ParamsJSON)
	assert.JSONEq(t, before.HeadersJSON, after.HeadersJSON)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestUpdateContextNullResetsObjects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	contextID, err := env.svc.CreateContext(ctx, domain.ContextInput{Params: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)

	var patch domain.ContextPatch
	require.NoError(t, json.Unmarshal([]byte(`{"params":null,"name":null,"description":""}`), &patch))
	require.NoError(t, env.svc.UpdateContext(ctx, contextID, patch))

	got, err := env.store.GetContext(ctx, contextID)
	require.NoError(t, err)
	assert.Equal(t, "{}", got.ParamsJSON)
	assert.Equal(t, domain.DefaultContextName, got.Name)
	assert.Nil(t, got.Description)
}

func TestUpdateContextAcceptsStringifiedJSON(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	contextID, err := env.svc.CreateContext(ctx, domain.ContextInput{})
	require.NoError(t, err)

	var patch domain.ContextPatch
	require.NoError(t, json.Unmarshal([]byte(`{"params":"{\"mode\":\"test\"}"}`), &patch))
	require.NoError(t, env.svc.UpdateContext(ctx, contextID, patch))

	got, err := env.store.GetContext(ctx, contextID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"test"}`, got.ParamsJSON)
}

func TestUpdateCaseClearsAssistantMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	versionID, _, caseIDs := env.seed(t, 1, 1)
	caseID := caseIDs[0][0]

	var patch domain.CasePatch
	require.NoError(t, json.Unmarshal([]byte(`{"assistantMessage":{"role":"assistant","content":[{"type":"text","text":"pong"}]}}`), &patch))
	require.NoError(t, env.svc.UpdateCase(ctx, caseID, patch))

	tree, err := env.svc.FetchTree(ctx)
	require.NoError(t, err)
	kase := findCase(t, tree, versionID, caseID)
	require.NotNil(t, kase.AssistantMessage)
	assert.Equal(t, "pong", kase.AssistantMessage.Content.Text())

	patch = domain.CasePatch{}
	require.NoError(t, json.Unmarshal([]byte(`{"assistantMessage":null,"userMessage":null}`), &patch))
	require.NoError(t, env.svc.UpdateCase(ctx, caseID, patch))

	tree, err = env.svc.FetchTree(ctx)
	require.NoError(t, err)
	kase = findCase(t, tree, versionID, caseID)
	assert.Nil(t, kase.AssistantMessage)
	assert.Equal(t, "ping", kase.UserMessage.Content.Text())

	data, err := json.Marshal(kase)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "assistantMessage")
}

func TestDuplicateVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sourceID, err := env.svc.CreateVersion(ctx, domain.VersionInput{
		Label:        strPtr("Baseline"),
		Notes:        strPtr("first cut"),
		AgentBaseURL: strPtr("http://agent:8082"),
	})
	require.NoError(t, err)

	copyID, err := env.svc.DuplicateVersion(ctx, sourceID)
	require.NoError(t, err)
	assert.NotEqual(t, sourceID, copyID)

	got, err := env.store.GetVersion(ctx, copyID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Baseline (copy)", got.Label)
	assert.Equal(t, "first cut", *got.Notes)
	assert.Equal(t, "http://agent:8082", *got.AgentBaseURL)

	_, err = env.svc.DuplicateVersion(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "Version not found", err.Error())
}

func TestUpdateVersionBlankClearsNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.svc.CreateVersion(ctx, domain.VersionInput{Notes: strPtr("n")})
	require.NoError(t, err)

	var patch domain.VersionPatch
	require.NoError(t, json.Unmarshal([]byte(`{"notes":"","label":"Renamed"}`), &patch))
	require.NoError(t, env.svc.UpdateVersion(ctx, id, patch))

	got, err := env.store.GetVersion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Label)
	assert.Nil(t, got.Notes)
}

func TestDeleteContextCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	versionID, contextIDs, caseIDs := env.seed(t, 2, 2)
	_, err := env.svc.QueueRun(ctx, domain.RunRequest{VersionID: versionID})
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteContext(ctx, contextIDs[0]))

	gone, err := env.store.GetCase(ctx, caseIDs[0][0])
	require.NoError(t, err)
	assert.Nil(t, gone)

	results, err := env.store.ListResults(ctx, []string{versionID}, append(caseIDs[0], caseIDs[1]...))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, contextIDs[1], r.ContextID)
	}
}

func TestDeleteVersionKeepsContexts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	versionID, contextIDs, caseIDs := env.seed(t, 1, 2)
	_, err := env.svc.QueueRun(ctx, domain.RunRequest{VersionID: versionID})
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteVersion(ctx, versionID))

	results, err := env.store.ListResults(ctx, []string{versionID}, caseIDs[0])
	require.NoError(t, err)
	assert.Empty(t, results)

	kept, err := env.store.GetContext(ctx, contextIDs[0])
	require.NoError(t, err)
	assert.NotNil(t, kept)
	cases, err := env.store.ListCasesByContexts(ctx, contextIDs)
	require.NoError(t, err)
	assert.Len(t, cases, 2)
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	bucket, err := newTempBucket(t)
	require.NoError(t, err)
	env.svc.bucket = bucket
	env.svc.config.PublicUploadBaseURL = "https://cdn.example.com/"

	res, err := env.svc.Upload(context.Background(), UploadInput{
		Type:        "image",
		Filename:    "cat.png",
		ContentType: "image/png",
		Body:        stringsReader("png-bytes"),
	})
	require.NoError(t, err)
	assert.Regexp(t, `^uploads/image/\d+-[0-9a-f-]{36}\.png$`, res.Key)
	assert.Equal(t, "https://cdn.example.com/"+res.Key, res.URL)
	assert.Equal(t, int64(len("png-bytes")), res.Size)
	assert.Equal(t, "image/png", res.MimeType)
	assert.Equal(t, "cat.png", res.Name)

	info, err := bucket.Stat(context.Background(), res.Key)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, `inline; filename="cat.png"`, info.ContentDisposition)
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Upload(context.Background(), UploadInput{Type: "image"})
	require.Error(t, err)
	assert.Equal(t, "Missing file upload", err.Error())

	_, err = env.svc.Upload(context.Background(), UploadInput{Type: "video", Body: stringsReader("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Invalid upload type", err.Error())
}

func TestUploadDefaultsContentTypeAndRelativeURL(t *testing.T) {
	env := newTestEnv(t)
	bucket, err := newTempBucket(t)
	require.NoError(t, err)
	env.svc.bucket = bucket

	res, err := env.svc.Upload(context.Background(), UploadInput{
		Type:     "file",
		Filename: "notes",
		Body:     stringsReader("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", res.MimeType)
	assert.Equal(t, "/"+res.Key, res.URL)
	assert.Regexp(t, `^uploads/file/\d+-[0-9a-f-]{36}$`, res.Key)
}
