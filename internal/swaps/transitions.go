package swaps

import (
	"fmt"

	"github.com/gokselkaptan/takas-app-sub004/pkg/enums"
	pkgerrors "github.com/gokselkaptan/takas-app-sub004/pkg/errors"
)

// Event is a lifecycle trigger. Legality is decided by the transition table
// alone; services never flip a status outside of it.
type Event string

const (
	EventAccept         Event = "accept"
	EventSetupDelivery  Event = "setup_delivery"
	EventDeliver        Event = "deliver"
	EventConfirm        Event = "confirm"
	EventCancel         Event = "cancel"
	EventRequestMutual  Event = "request_mutual_cancel"
	EventAcceptMutual   Event = "accept_mutual_cancel"
	EventRejectMutual   Event = "reject_mutual_cancel"
	EventOpenDispute    Event = "open_dispute"
	EventResolveDispute Event = "resolve_dispute"
	EventAutoCancel     Event = "auto_cancel"
	EventAutoComplete   Event = "auto_complete"
	EventForceComplete  Event = "force_complete"
)

type transitionKey struct {
	status enums.SwapStatus
	event  Event
}

// transitions lists every legal (status, event) pair and its reachable target
// statuses. A pair absent here is a state conflict, full stop. Most pairs have
// a single target; deliver forks for item-for-item legs and reject_mutual
// restores whichever status the cancel request interrupted.
var transitions = map[transitionKey][]enums.SwapStatus{
	{enums.SwapStatusPending, EventAccept}:     {enums.SwapStatusAccepted},
	{enums.SwapStatusPending, EventCancel}:     {enums.SwapStatusCancelled},
	{enums.SwapStatusPending, EventAutoCancel}: {enums.SwapStatusCancelled},

	{enums.SwapStatusAccepted, EventSetupDelivery}: {enums.SwapStatusAwaitingDelivery},
	{enums.SwapStatusAccepted, EventCancel}:        {enums.SwapStatusCancelled},
	{enums.SwapStatusAccepted, EventRequestMutual}: {enums.SwapStatusCancelRequested},
	{enums.SwapStatusAccepted, EventAutoCancel}:    {enums.SwapStatusCancelled},

	{enums.SwapStatusAwaitingDelivery, EventDeliver}:       {enums.SwapStatusDelivered, enums.SwapStatusPartiallyDelivered},
	{enums.SwapStatusAwaitingDelivery, EventCancel}:        {enums.SwapStatusCancelled},
	{enums.SwapStatusAwaitingDelivery, EventRequestMutual}: {enums.SwapStatusCancelRequested},
	{enums.SwapStatusAwaitingDelivery, EventAutoCancel}:    {enums.SwapStatusCancelled},

	{enums.SwapStatusPartiallyDelivered, EventDeliver}:       {enums.SwapStatusDelivered},
	{enums.SwapStatusPartiallyDelivered, EventCancel}:        {enums.SwapStatusCancelled},
	{enums.SwapStatusPartiallyDelivered, EventRequestMutual}: {enums.SwapStatusCancelRequested},

	{enums.SwapStatusDelivered, EventConfirm}:       {enums.SwapStatusCompleted},
	{enums.SwapStatusDelivered, EventOpenDispute}:   {enums.SwapStatusDisputed},
	{enums.SwapStatusDelivered, EventAutoComplete}:  {enums.SwapStatusCompleted},
	{enums.SwapStatusDelivered, EventForceComplete}: {enums.SwapStatusCompleted},

	{enums.SwapStatusCancelRequested, EventAcceptMutual}: {enums.SwapStatusCancelledMutual},
	{enums.SwapStatusCancelRequested, EventRejectMutual}: {
		enums.SwapStatusAccepted,
		enums.SwapStatusAwaitingDelivery,
		enums.SwapStatusPartiallyDelivered,
	},
	{enums.SwapStatusCancelRequested, EventCancel}: {enums.SwapStatusCancelled},

	{enums.SwapStatusDisputed, EventResolveDispute}: {enums.SwapStatusResolved, enums.SwapStatusDelivered},
	{enums.SwapStatusDisputed, EventForceComplete}:  {enums.SwapStatusCompleted},
}

// ValidateTransition returns a state conflict unless the table allows moving
// from the current status to target via event.
func ValidateTransition(from enums.SwapStatus, event Event, to enums.SwapStatus) error {
	for _, candidate := range transitions[transitionKey{status: from, event: event}] {
		if candidate == to {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("event %s cannot move swap from %s to %s", event, from, to))
}

// SingleTarget resolves the lone target for an unambiguous pair.
func SingleTarget(from enums.SwapStatus, event Event) (enums.SwapStatus, error) {
	targets := transitions[transitionKey{status: from, event: event}]
	if len(targets) != 1 {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("event %s is not available from status %s", event, from))
	}
	return targets[0], nil
}
