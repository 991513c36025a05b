package models

// ConnectionKind names a confirmed-relationship collection.
type ConnectionKind string

const (
	// ConnectionFollows is the set of users a user follows.
	ConnectionFollows ConnectionKind = "follows"
	// ConnectionFollowers is the set of users following a user.
	ConnectionFollowers ConnectionKind = "followers"
)

// Valid reports whether k is one of the enumerated connection kinds.
func (k ConnectionKind) Valid() bool {
	return k == ConnectionFollows || k == ConnectionFollowers
}

// Reverse returns the kind stored on the other side of the pair.
func (k ConnectionKind) Reverse() ConnectionKind {
	if k == ConnectionFollows {
		return ConnectionFollowers
	}
	return ConnectionFollows
}

// RequestKind names a pending-request collection.
type RequestKind string

const (
	// RequestFollow is the set of users a user has asked to follow.
	RequestFollow RequestKind = "follow"
	// RequestFollower is the set of users who asked to follow a user.
	RequestFollower RequestKind = "follower"
)

// Valid reports whether k is one of the enumerated request kinds.
func (k RequestKind) Valid() bool {
	return k == RequestFollow || k == RequestFollower
}

// Reverse returns the kind stored on the other side of the pair.
func (k RequestKind) Reverse() RequestKind {
	if k == RequestFollow {
		return RequestFollower
	}
	return RequestFollow
}

// Collection returns the datastore collection name, e.g. "follow_requests".
func (k RequestKind) Collection() string {
	return string(k) + "_requests"
}

// RequestIntent is the answer to a follower request.
type RequestIntent string

const (
	// IntentAccept turns the pending request into a connection.
	IntentAccept RequestIntent = "accept"
	// IntentDecline drops the pending request.
	IntentDecline RequestIntent = "decline"
)

// Valid reports whether i is accept or decline.
func (i RequestIntent) Valid() bool {
	return i == IntentAccept || i == IntentDecline
}

// RelationshipState is the status of the actor relative to a target user.
type RelationshipState string

const (
	RelationshipNone            RelationshipState = "none"
	RelationshipFollowing       RelationshipState = "following"
	RelationshipPendingSent     RelationshipState = "pending_sent"
	RelationshipPendingReceived RelationshipState = "pending_received"
)

// RelationshipStatus describes both directions between the actor and a target.
type RelationshipStatus struct {
	Username   string            `json:"username"`
	Status     RelationshipState `json:"status"`
	FollowedBy bool              `json:"followed_by"`
}

// Inconsistency describes a one-sided record left after a failed
// compensating or best-effort delete.
type Inconsistency struct {
	Operation   string `json:"operation"`
	Path        string `json:"path"`
	Cause       string `json:"cause"`
	CleanupErr  string `json:"cleanup_error"`
	Description string `json:"description"`
}

// ToRecord flattens the inconsistency into datastore leaves.
func (i Inconsistency) ToRecord() map[string]string {
	return map[string]string{
		"operation":     i.Operation,
		"path":          i.Path,
		"cause":         i.Cause,
		"cleanup_error": i.CleanupErr,
		"description":   i.Description,
	}
}
