// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Roles recognized by this backend. Tokens are minted by the external
// identity service; the core only cares which side of a request the
// actor is on.
const (
	RoleCustomer = "customer"
	RoleRepairer = "repairer"
	RoleAdmin    = "admin"
)

// Identity represents the authenticated actor for a request.
// This abstracts identity extraction from the web framework so handlers
// and services receive an explicit (actorId, role) pair.
type Identity interface {
	// ActorID returns the authenticated actor's ID.
	ActorID() uuid.UUID
	// Role returns the actor's role (customer, repairer or admin).
	Role() string
	// HasRole checks if the actor has the given role.
	HasRole(role string) bool
	// IsAuthenticated returns true if the actor is authenticated.
	IsAuthenticated() bool
}

type identity struct {
	actorID       uuid.UUID
	role          string
	authenticated bool
}

func (i *identity) ActorID() uuid.UUID { return i.actorID }

func (i *identity) Role() string { return i.role }

func (i *identity) HasRole(role string) bool { return i.role == role }

func (i *identity) IsAuthenticated() bool { return i.authenticated }

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if actor info is not present.
func GetIdentity(c *gin.Context) Identity {
	actorID, actorOK := c.Get(ContextActorIDKey)
	role, roleOK := c.Get(ContextRoleKey)

	if !actorOK {
		return &identity{authenticated: false}
	}

	aid, ok := actorID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	var roleStr string
	if roleOK {
		roleStr, _ = role.(string)
	}

	return &identity{
		actorID:       aid,
		role:          roleStr,
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the actor is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return id
}
