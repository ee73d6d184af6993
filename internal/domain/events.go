package domain

// Event names emitted to the Notifier. Clients match on these strings.
const (
	EventQueueJoined          = "queue_joined"
	EventQueueLeft            = "queue_left"
	EventMatchFound           = "match_found"
	EventRoomCreated          = "room_created"
	EventRoomJoined           = "room_joined"
	EventRoomUpdated          = "room_updated"
	EventRoomLeft             = "room_left"
	EventRoomDeleted          = "room_deleted"
	EventRoomReset            = "room_reset"
	EventProblemChanged       = "problem_changed"
	EventPlayerReady          = "player_ready_status"
	EventMatchStarted         = "match_started"
	EventOpponentSubmitted    = "opponent_submitted"
	EventSubmissionReceived   = "submission_received"
	EventMatchEvaluating      = "match_evaluating"
	EventMatchEnded           = "match_ended"
	EventOpponentDisconnected = "opponent_disconnected"
	EventMatchCancelled       = "match_cancelled"
)

// TopicGlobal receives events every client may see, such as public room listings.
const TopicGlobal = "global"

// PlayerTopic addresses a single player regardless of which session they are in.
func PlayerTopic(id PlayerID) string {
	return "player:" + string(id)
}
