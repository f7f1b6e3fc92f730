package service

import "go.mongodb.org/mongo-driver/bson/primitive"

// CheckOwner allows a mutation only when actor is the recorded owner of the
// resource. It runs before any write so a rejected call changes nothing.
func CheckOwner(actor, owner primitive.ObjectID, resource string) error {
	if actor.IsZero() {
		return newError(ErrUnauthenticated, "not authorized, no token")
	}
	if actor != owner {
		return newError(ErrForbidden, "not authorized to modify this %s", resource)
	}
	return nil
}
