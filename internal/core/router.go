package core

// Decide maps one classified, attributed message to its action set. Pure and
// stateless: it reads snapshots only, so identical inputs always produce the
// identical decision. The caller stamps DecidedAt.
//
// Default policy:
//
//	Interested        conf >= high  -> RespondInterested + NotifyRep
//	Interested        conf <  high  -> NotifyRep (human review first)
//	MaybeInterested   conf >= mid   -> RespondMaybe
//	MaybeInterested   conf <  mid   -> NoAction
//	NotInterested     any           -> SuppressAndAcknowledge
//
// Unattributed threads are ineligible for campaign-list removal, so
// NotInterested there downgrades to NoAction.
func Decide(
	cls *ClassificationResult,
	attr *AttributionRecord,
	score *LeadScore,
	policy RoutingPolicy,
) *ActionDecision {
	var actions []Action

	switch cls.Label {
	case LabelInterested:
		if cls.Confidence >= policy.ThresholdHigh {
			actions = []Action{ActionRespondInterested, ActionNotifyRep}
		} else {
			actions = []Action{ActionNotifyRep}
		}
	case LabelMaybeInterested:
		if cls.Confidence >= policy.ThresholdMid {
			actions = []Action{ActionRespondMaybe}
		} else {
			actions = []Action{ActionNoAction}
		}
	case LabelNotInterested:
		if attr.Attributed() {
			actions = []Action{ActionSuppressAndAcknowledge}
		} else {
			actions = []Action{ActionNoAction}
		}
	default:
		actions = []Action{ActionNoAction}
	}

	return &ActionDecision{
		MessageID:      cls.MessageID,
		Actions:        actions,
		Classification: *cls,
		Attribution:    *attr,
		Score:          *score,
	}
}
