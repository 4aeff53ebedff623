package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys shared by the engine and its adapters.
const (
	AttrSiteID         = attribute.Key("site.id")
	AttrEventID        = attribute.Key("event.id")
	AttrTransitionKind = attribute.Key("transition.kind")
	AttrEffect         = attribute.Key("dispatch.effect")
)

// TransitionAttrs describes a confirmed transition on a span.
func TransitionAttrs(eventID, siteID, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEventID.String(eventID),
		AttrSiteID.String(siteID),
		AttrTransitionKind.String(kind),
	}
}
