package tools

import (
	"github.com/moshesimon/OpenWork-sub000/internal/llm"
)

// Catalog returns the tool declarations handed to the reasoning provider.
// systemEvent narrows the catalog for system-event turns: the briefing and
// inform tools are only offered there, since user-command turns answer the
// user directly instead of posting notices.
func Catalog(systemEvent bool) []llm.Tool {
	tools := []llm.Tool{
		{
			Name:        NameListUsers,
			Description: "List all workspace members with their handles and display names.",
			Parameters:  objectSchema(nil, nil),
		},
		{
			Name:        NameListChannels,
			Description: "List all channels in the workspace.",
			Parameters:  objectSchema(nil, nil),
		},
		{
			Name:        NameListMessages,
			Description: "List recent messages in a conversation, oldest first.",
			Parameters: objectSchema(map[string]interface{}{
				"conversation_id": stringProp("Conversation to read"),
				"limit":           intProp("Maximum messages to return (default 50)"),
			}, []string{"conversation_id"}),
		},
		{
			Name:        NameListTasks,
			Description: "List the user's workspace tasks, most recent first.",
			Parameters: objectSchema(map[string]interface{}{
				"limit": intProp("Maximum tasks to return (default 50)"),
			}, nil),
		},
		{
			Name:        NameListCalendarEvents,
			Description: "List the user's calendar events, optionally within a time range.",
			Parameters: objectSchema(map[string]interface{}{
				"from": stringProp("Range start, RFC 3339"),
				"to":   stringProp("Range end, RFC 3339"),
			}, nil),
		},
		{
			Name:        NameSearchMessages,
			Description: "Search workspace messages by text.",
			Parameters: objectSchema(map[string]interface{}{
				"query": stringProp("Text to search for"),
				"limit": intProp("Maximum results (default 20)"),
			}, []string{"query"}),
		},
		{
			Name:        NameCreateTask,
			Description: "Create a workspace task for the user.",
			Parameters: objectSchema(map[string]interface{}{
				"title":       stringProp("Task title"),
				"description": stringProp("Task description"),
				"due_at":      stringProp("Due date, RFC 3339"),
			}, []string{"title"}),
		},
		{
			Name:        NameUpdateTask,
			Description: "Update an existing workspace task. Only provided fields change.",
			Parameters: objectSchema(map[string]interface{}{
				"task_id":     stringProp("Task to update"),
				"title":       stringProp("New title"),
				"description": stringProp("New description"),
				"status":      stringProp("New status, e.g. open or done"),
				"due_at":      stringProp("New due date, RFC 3339"),
			}, []string{"task_id"}),
		},
		{
			Name:        NameCreateCalendarEvent,
			Description: "Create a calendar event for the user.",
			Parameters: objectSchema(map[string]interface{}{
				"title":       stringProp("Event title"),
				"description": stringProp("Event description"),
				"starts_at":   stringProp("Start time, RFC 3339"),
				"ends_at":     stringProp("End time, RFC 3339"),
			}, []string{"title", "starts_at", "ends_at"}),
		},
		{
			Name:        NameUpdateCalendarEvent,
			Description: "Update a calendar event, located by id or by title/date hint.",
			Parameters: objectSchema(map[string]interface{}{
				"event_id":    stringProp("Event id, when known"),
				"title_hint":  stringProp("Title substring to locate the event"),
				"date_hint":   stringProp("Day the event occurs on, RFC 3339"),
				"title":       stringProp("New title"),
				"description": stringProp("New description"),
				"starts_at":   stringProp("New start time, RFC 3339"),
				"ends_at":     stringProp("New end time, RFC 3339"),
			}, nil),
		},
		{
			Name:        NameDeleteCalendarEvent,
			Description: "Delete a calendar event, located by id or by title/date hint.",
			Parameters: objectSchema(map[string]interface{}{
				"event_id":   stringProp("Event id, when known"),
				"title_hint": stringProp("Title substring to locate the event"),
				"date_hint":  stringProp("Day the event occurs on, RFC 3339"),
			}, nil),
		},
		{
			Name:        NameSendMessage,
			Description: "Send a message to a conversation on the user's behalf. Subject to the user's autonomy policy.",
			Parameters: objectSchema(map[string]interface{}{
				"conversation_id": stringProp("Conversation to post into"),
				"body":            stringProp("Message text"),
				"reasoning":       stringProp("Why this message should be sent"),
				"confidence":      numberProp("Confidence in this action, 0 to 1"),
			}, []string{"conversation_id", "body"}),
		},
		{
			Name:        NameWriteAIChatMessage,
			Description: "Write a note into the user's private AI chat thread.",
			Parameters: objectSchema(map[string]interface{}{
				"body":       stringProp("Note text"),
				"confidence": numberProp("Confidence in this action, 0 to 1"),
			}, []string{"body"}),
		},
	}

	if systemEvent {
		tools = append(tools,
			llm.Tool{
				Name:        NameCreateBriefing,
				Description: "Create a briefing item in the user's feed for something that needs their attention.",
				Parameters: objectSchema(map[string]interface{}{
					"summary":            stringProp("What the user should know"),
					"importance":         stringProp("LOW, MEDIUM, or HIGH"),
					"recommended_action": stringProp("What the user should do about it"),
				}, []string{"summary"}),
			},
			llm.Tool{
				Name:        NameCreateInformAction,
				Description: "Record that the user should be informed about something; HIGH importance also surfaces a briefing.",
				Parameters: objectSchema(map[string]interface{}{
					"summary":    stringProp("What to inform the user about"),
					"importance": stringProp("LOW, MEDIUM, or HIGH"),
					"confidence": numberProp("Confidence in this action, 0 to 1"),
				}, []string{"summary"}),
			},
		)
	}
	return tools
}

func objectSchema(props map[string]interface{}, required []string) map[string]interface{} {
	if props == nil {
		props = map[string]interface{}{}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func intProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": desc}
}

func numberProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": desc}
}
