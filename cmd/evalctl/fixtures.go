package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/domusnext/eval/internal/domain"
	"github.com/domusnext/eval/internal/workspace"
)

// stringFlag binds a string flag and reports whether it was given.
type stringFlag struct {
	name  string
	usage string
	value string
}

func bindStrings(cmd *cobra.Command, flags ...*stringFlag) {
	for _, f := range flags {
		cmd.Flags().StringVar(&f.value, f.name, "", f.usage)
	}
}

func optional(cmd *cobra.Command, f *stringFlag) *string {
	if !cmd.Flags().Changed(f.name) {
		return nil
	}
	v := f.value
	return &v
}

func optionalJSON(cmd *cobra.Command, f *stringFlag) (json.RawMessage, error) {
	if !cmd.Flags().Changed(f.name) {
		return nil, nil
	}
	return jsonFlag(f.name, f.value)
}

// buildPatch copies every changed flag into a patch. An empty value is sent
// as-is, which clears nullable columns.
func buildPatch(cmd *cobra.Command, fields map[string]*stringFlag, jsonFields map[string]*stringFlag) (workspace.Patch, error) {
	patch := workspace.Patch{}
	for key, f := range fields {
		if cmd.Flags().Changed(f.name) {
			patch[key] = f.value
		}
	}
	for key, f := range jsonFields {
		raw, err := optionalJSON(cmd, f)
		if err != nil {
			return nil, err
		}
		if raw != nil {
			patch[key] = raw
		}
	}
	return patch, nil
}

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Create, update, duplicate or delete versions",
	}

	label := &stringFlag{name: "label", usage: "Version label"}
	notes := &stringFlag{name: "notes", usage: "Free-form notes"}
	agent := &stringFlag{name: "agent-url", usage: "Agent base URL used for runs"}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := newClient().CreateVersion(cmd.Context(), domain.VersionInput{
				Label:        optional(cmd, label),
				Notes:        optional(cmd, notes),
				AgentBaseURL: optional(cmd, agent),
			})
			if err != nil {
				return err
			}
			printCreated(cmd, "version", id)
			return nil
		},
	}
	bindStrings(create, label, notes, agent)

	uLabel := &stringFlag{name: "label", usage: "Version label"}
	uNotes := &stringFlag{name: "notes", usage: "Free-form notes (empty clears)"}
	uAgent := &stringFlag{name: "agent-url", usage: "Agent base URL (empty clears)"}
	update := &cobra.Command{
		Use:   "update <version-id>",
		Short: "Update a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := buildPatch(cmd, map[string]*stringFlag{
				"label":        uLabel,
				"notes":        uNotes,
				"agentBaseUrl": uAgent,
			}, nil)
			if err != nil {
				return err
			}
			if err := newClient().UpdateVersion(cmd.Context(), args[0], patch); err != nil {
				return err
			}
			printDone(cmd, "updated", "version", args[0])
			return nil
		},
	}
	bindStrings(update, uLabel, uNotes, uAgent)

	duplicate := &cobra.Command{
		Use:   "duplicate <version-id>",
		Short: "Copy a version's label, notes and agent URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := newClient().DuplicateVersion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printCreated(cmd, "version", id)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <version-id>",
		Short: "Delete a version and its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().DeleteVersion(cmd.Context(), args[0]); err != nil {
				return err
			}
			printDone(cmd, "deleted", "version", args[0])
			return nil
		},
	}

	cmd.AddCommand(create, update, duplicate, del)
	return cmd
}

func contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Create, update or delete contexts",
	}

	name := &stringFlag{name: "name", usage: "Context name"}
	desc := &stringFlag{name: "description", usage: "Context description"}
	params := &stringFlag{name: "params", usage: "Agent params as a JSON object"}
	headers := &stringFlag{name: "headers", usage: "Request headers as a JSON object"}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := domain.ContextInput{Name: optional(cmd, name), Description: optional(cmd, desc)}
			var err error
			if in.Params, err = optionalJSON(cmd, params); err != nil {
				return err
			}
			if in.Headers, err = optionalJSON(cmd, headers); err != nil {
				return err
			}
			id, err := newClient().CreateContext(cmd.Context(), in)
			if err != nil {
				return err
			}
			printCreated(cmd, "context", id)
			return nil
		},
	}
	bindStrings(create, name, desc, params, headers)

	uName := &stringFlag{name: "name", usage: "Context name"}
	uDesc := &stringFlag{name: "description", usage: "Context description (empty clears)"}
	uParams := &stringFlag{name: "params", usage: "Agent params as a JSON object"}
	uHeaders := &stringFlag{name: "headers", usage: "Request headers as a JSON object"}
	update := &cobra.Command{
		Use:   "update <context-id>",
		Short: "Update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := buildPatch(cmd,
				map[string]*stringFlag{"name": uName, "description": uDesc},
				map[string]*stringFlag{"params": uParams, "headers": uHeaders})
			if err != nil {
				return err
			}
			if err := newClient().UpdateContext(cmd.Context(), args[0], patch); err != nil {
				return err
			}
			printDone(cmd, "updated", "context", args[0])
			return nil
		},
	}
	bindStrings(update, uName, uDesc, uParams, uHeaders)

	del := &cobra.Command{
		Use:   "delete <context-id>",
		Short: "Delete a context with its cases and results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().DeleteContext(cmd.Context(), args[0]); err != nil {
				return err
			}
			printDone(cmd, "deleted", "context", args[0])
			return nil
		},
	}

	cmd.AddCommand(create, update, del)
	return cmd
}

func caseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Create, update or delete cases",
	}

	var contextID string
	title := &stringFlag{name: "title", usage: "Case title"}
	desc := &stringFlag{name: "description", usage: "Case description"}
	message := &stringFlag{name: "message", usage: "User prompt as plain text"}
	userMsg := &stringFlag{name: "user-message", usage: "User message as JSON"}
	assistant := &stringFlag{name: "assistant-message", usage: "Expected assistant message as JSON"}
	metadata := &stringFlag{name: "metadata", usage: "Metadata as a JSON object"}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a case inside a context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := domain.CaseInput{
				ContextID:   contextID,
				Title:       optional(cmd, title),
				Description: optional(cmd, desc),
			}
			var err error
			if in.UserMessage, err = userMessageFlag(cmd, message, userMsg); err != nil {
				return err
			}
			if in.AssistantMessage, err = optionalJSON(cmd, assistant); err != nil {
				return err
			}
			if in.Metadata, err = optionalJSON(cmd, metadata); err != nil {
				return err
			}
			id, err := newClient().CreateCase(cmd.Context(), in)
			if err != nil {
				return err
			}
			printCreated(cmd, "case", id)
			return nil
		},
	}
	create.Flags().StringVar(&contextID, "context", "", "Owning context ID (required)")
	_ = create.MarkFlagRequired("context")
	bindStrings(create, title, desc, message, userMsg, assistant, metadata)

	uTitle := &stringFlag{name: "title", usage: "Case title"}
	uDesc := &stringFlag{name: "description", usage: "Case description (empty clears)"}
	uMessage := &stringFlag{name: "message", usage: "User prompt as plain text"}
	uUserMsg := &stringFlag{name: "user-message", usage: "User message as JSON"}
	uAssistant := &stringFlag{name: "assistant-message", usage: "Expected assistant message as JSON"}
	uMetadata := &stringFlag{name: "metadata", usage: "Metadata as a JSON object"}
	var clearAssistant bool
	update := &cobra.Command{
		Use:   "update <case-id>",
		Short: "Update a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := buildPatch(cmd,
				map[string]*stringFlag{"title": uTitle, "description": uDesc},
				map[string]*stringFlag{"assistantMessage": uAssistant, "metadata": uMetadata})
			if err != nil {
				return err
			}
			msg, err := userMessageFlag(cmd, uMessage, uUserMsg)
			if err != nil {
				return err
			}
			if msg != nil {
				patch["userMessage"] = msg
			}
			if clearAssistant {
				patch["assistantMessage"] = nil
			}
			if err := newClient().UpdateCase(cmd.Context(), args[0], patch); err != nil {
				return err
			}
			printDone(cmd, "updated", "case", args[0])
			return nil
		},
	}
	bindStrings(update, uTitle, uDesc, uMessage, uUserMsg, uAssistant, uMetadata)
	update.Flags().BoolVar(&clearAssistant, "clear-assistant", false, "Remove the expected assistant message")
	update.MarkFlagsMutuallyExclusive("assistant-message", "clear-assistant")

	del := &cobra.Command{
		Use:   "delete <case-id>",
		Short: "Delete a case and its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().DeleteCase(cmd.Context(), args[0]); err != nil {
				return err
			}
			printDone(cmd, "deleted", "case", args[0])
			return nil
		},
	}

	create.MarkFlagsMutuallyExclusive("message", "user-message")
	update.MarkFlagsMutuallyExclusive("message", "user-message")
	cmd.AddCommand(create, update, del)
	return cmd
}

// userMessageFlag turns --message text into a user message, or passes
// --user-message JSON through.
func userMessageFlag(cmd *cobra.Command, text, raw *stringFlag) (json.RawMessage, error) {
	if cmd.Flags().Changed(text.name) {
		return json.Marshal(domain.UserMessage{Role: "user", Content: domain.NewTextContent(text.value)})
	}
	return optionalJSON(cmd, raw)
}
