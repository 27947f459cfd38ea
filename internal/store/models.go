package store

import (
	"time"

	"taskboard/api/internal/ordering"
)

// ContainerKind names an ordering scope: the lists of a board or the cards of
// a list.
type ContainerKind string

const (
	KindBoard ContainerKind = "board"
	KindList  ContainerKind = "list"
)

type Board struct {
	ID           string
	Name         string
	OrderVersion int64
	CreatedAt    time.Time
}

type List struct {
	ID           string
	BoardID      string
	Name         string
	Position     float64
	OrderVersion int64
	CreatedAt    time.Time
}

type Card struct {
	ID        string
	ListID    string
	Title     string
	Position  float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sequence is a container's items sorted ascending by position, read together
// with the container's order version.
type Sequence struct {
	Kind        ContainerKind
	ContainerID string
	Version     int64
	Items       []ordering.Item
}

// NewItem is a row created by an OrderWrite. Label is the list name or the
// card title.
type NewItem struct {
	ID    string
	Label string
}

// TransferFrom re-parents ItemID from SourceID into the written container.
type TransferFrom struct {
	ItemID   string
	SourceID string
}

// OrderWrite is applied atomically by WritePositions.
type OrderWrite struct {
	Kind            ContainerKind
	ContainerID     string
	ExpectedVersion int64
	Updates         []ordering.Update
	// Inserts are created at the position their ID receives in Updates.
	Inserts  []NewItem
	Transfer *TransferFrom
}
