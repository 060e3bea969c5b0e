package conversion

// externalEventNames maps internal event types to the ad platform's
// server-event taxonomy.
var externalEventNames = map[string]string{
	"view":      "ViewContent",
	"click":     "CustomizeProduct",
	"download":  "Lead",
	"contact":   "Contact",
	"subscribe": "Subscribe",
	"purchase":  "Purchase",
}

// fallbackEventName is used for event types with no fixed mapping.
const fallbackEventName = "CustomEvent"

// ExternalEventName translates an internal event type to the external
// taxonomy. Total over all inputs: unrecognized types map to the generic
// fallback, never to an empty name.
func ExternalEventName(eventType string) string {
	if name, ok := externalEventNames[eventType]; ok {
		return name
	}
	return fallbackEventName
}
