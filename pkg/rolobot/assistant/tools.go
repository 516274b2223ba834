// Package assistant – tools.go declares the fixed tool vocabulary exposed to
// the model and validates the arguments of every call before dispatch. The
// names and required arguments are a contract the model is steered by; a
// malformed call is a provider failure, not a crash.
package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Tool names.
const (
	toolSearchContacts    = "search_contacts"
	toolAddContact        = "add_contact"
	toolDeleteContact     = "delete_contact"
	toolUpdateContact     = "update_contact"
	toolConfirmAction     = "confirm_action"
	toolCancelAction      = "cancel_action"
	toolCheckSubscription = "check_subscription"
)

// makeToolDefinition builds one function tool from a JSON-schema parameter
// map.
func makeToolDefinition(name, description string, params map[string]any) openai.Tool {
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

// toolVocabulary returns the fixed tool set. The same vocabulary serves both
// the "ask me first" and "just do it" personas; confirmation is a preference
// applied at dispatch, not a schema branch.
func toolVocabulary() []openai.Tool {
	return []openai.Tool{
		makeToolDefinition(toolSearchContacts,
			"Search the user's contacts and notes. Pass query '*' to list everything.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Search query, cleaned of filler words",
					},
				},
				"required": []string{"query"},
			}),
		makeToolDefinition(toolAddContact,
			"Save a new contact or note from the user's text.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{
						"type":        "string",
						"description": "Full raw text describing the contact",
					},
					"force_new": map[string]any{
						"type":        "boolean",
						"description": "Create a separate record even if a similar name exists",
					},
				},
				"required": []string{"text"},
			}),
		makeToolDefinition(toolDeleteContact,
			"Delete a contact by its id.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contact_id": map[string]any{
						"type":        "string",
						"description": "Id of the contact to delete",
					},
				},
				"required": []string{"contact_id"},
			}),
		makeToolDefinition(toolUpdateContact,
			"Update an existing contact with new information.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contact_id": map[string]any{
						"type":        "string",
						"description": "Id of the contact to update",
					},
					"text": map[string]any{
						"type":        "string",
						"description": "New information about the contact",
					},
				},
				"required": []string{"contact_id", "text"},
			}),
		makeToolDefinition(toolConfirmAction,
			"The user agreed to the pending action (said yes / go ahead).", nil),
		makeToolDefinition(toolCancelAction,
			"The user declined the pending action (said no / nevermind).", nil),
		makeToolDefinition(toolCheckSubscription,
			"Report the user's subscription tier and contact usage.", nil),
	}
}

// searchArgs, addArgs, deleteArgs, updateArgs are the validated argument
// shapes for the four parameterized tools.
type searchArgs struct {
	Query string `json:"query"`
}

type addArgs struct {
	Text     string `json:"text"`
	ForceNew bool   `json:"force_new"`
}

type deleteArgs struct {
	ContactID string `json:"contact_id"`
}

type updateArgs struct {
	ContactID string `json:"contact_id"`
	Text      string `json:"text"`
}

// decodeArgs parses a tool-call argument string into the typed shape.
func decodeArgs(raw string, into any) error {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

// requireString validates a mandatory string argument.
func requireString(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required argument %q", name)
	}
	return nil
}
