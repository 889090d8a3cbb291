package signaling

import (
	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/presence"
)

// route describes how one relayed message type is delivered to its target
// (always the body's "to" user).
type route struct {
	event   EventType
	payload func(MessageBody) any
	// onDelivered applies the presence effect of a successful relay.
	onDelivered func(h *Hub, b MessageBody)
}

var routes = map[MessageType]route{
	MessageTypeCallUser: {
		event:   EventIncomingCall,
		payload: func(b MessageBody) any { return offerPayload{From: b.From, Offer: b.Offer} },
		onDelivered: func(h *Hub, b MessageBody) {
			h.markInCallLocked(b.From, b.To)
		},
	},
	MessageTypeAnswerCall: {
		event:   EventCallAnswered,
		payload: func(b MessageBody) any { return answerPayload{Answer: b.Answer} },
	},
	MessageTypeCallAccepted: {
		event:   EventCallAccepted,
		payload: func(b MessageBody) any { return offerPayload{From: b.From, Offer: b.Offer} },
	},
	MessageTypeCallDeclined: {
		event:   EventCallDeclined,
		payload: func(b MessageBody) any { return offerPayload{From: b.From, Offer: b.Offer} },
	},
	MessageTypeICECandidate: {
		event:   EventICECandidate,
		payload: func(b MessageBody) any { return candidatePayload{Candidate: b.Candidate} },
	},
	MessageTypeSendMessage: {
		event:   EventNewMessage,
		payload: func(b MessageBody) any { return chatPayload{From: b.From, Message: b.Message} },
	},
	MessageTypeDisconnectCall: {
		event: EventCallDisconnect,
		payload: func(b MessageBody) any {
			return callDisconnectPayload{From: b.From, To: b.To, Name: b.Name, Complain: b.Complain, Block: b.Block}
		},
		onDelivered: func(h *Hub, b MessageBody) {
			h.markLiveLocked(b.From, b.To)
		},
	},
}

// relayLocked forwards b to the connection bound to b.To.
//
// If the target is unknown, user-not-found goes back to the sender's own
// connection, but only while that connection is bound to an identity; an
// anonymous sender gets nothing. Presence is untouched on failure.
func (h *Hub) relayLocked(sender presence.ConnID, typ MessageType, r route, b MessageBody) {
	target, ok := h.registry.Lookup(b.To)
	if !ok {
		h.metrics.Inc(metrics.RelayTargetNotFound)
		if _, bound := h.registry.UserFor(sender); !bound {
			h.metrics.Inc(metrics.RelayDropped)
			h.log.Debug("relay_dropped", "type", typ, "to", b.To, "conn_id", sender)
			return
		}
		h.log.Debug("relay_target_not_found", "type", typ, "to", b.To, "conn_id", sender)
		h.transport.Send(sender, Event{Type: EventUserNotFound, Payload: userNotFoundPayload{To: b.To}})
		return
	}

	h.transport.Send(target, Event{Type: r.event, Payload: r.payload(b)})
	h.metrics.Inc(metrics.RelayDelivered)
	if r.onDelivered != nil {
		r.onDelivered(h, b)
	}
}
