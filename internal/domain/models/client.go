// internal/domain/models/client.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Client status values.
const (
	ClientStatusActive     = "active"
	ClientStatusDischarged = "discharged"
)

// Client is a person receiving care. Enrollments and sessions reference it
// by client_id and are deleted with it.
type Client struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	FullName    string             `bson:"full_name" json:"full_name"`
	FullNameCI  string             `bson:"full_name_ci" json:"-"`
	DateOfBirth *time.Time         `bson:"date_of_birth,omitempty" json:"date_of_birth,omitempty"`
	Status      string             `bson:"status" json:"status"`
	CreatedBy   primitive.ObjectID `bson:"created_by" json:"created_by"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Enrollment places a client in a program for a date range.
type Enrollment struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	ClientID  primitive.ObjectID `bson:"client_id" json:"client_id"`
	Program   string             `bson:"program" json:"program"`
	StartDate time.Time          `bson:"start_date" json:"start_date"`
	EndDate   *time.Time         `bson:"end_date,omitempty" json:"end_date,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Session is a scheduled meeting between a client and a staff member.
type Session struct {
	ID              primitive.ObjectID `bson:"_id" json:"id"`
	ClientID        primitive.ObjectID `bson:"client_id" json:"client_id"`
	StaffID         primitive.ObjectID `bson:"staff_id" json:"staff_id"`
	ScheduledAt     time.Time          `bson:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int                `bson:"duration_minutes" json:"duration_minutes"`
	Notes           string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
}

// ClientDependents counts the records removed along with a client.
type ClientDependents struct {
	Enrollments int64 `json:"enrollments"`
	Sessions    int64 `json:"sessions"`
}
