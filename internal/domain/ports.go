package domain

import "context"

// Op is a comparison operator for attribute queries
type Op string

const (
	OpEquals    Op = "="
	OpIsNull    Op = "IS NULL"
	OpIsNotNull Op = "IS NOT NULL"
)

// EntityGraphClient is the typed query interface over the backing repository.
// Returned instances carry only id, class and display name until their
// attributes are hydrated with LoadAttributes.
type EntityGraphClient interface {
	// FetchByID returns the instance or nil when it does not exist.
	FetchByID(ctx context.Context, id ID) (*Instance, error)

	// FetchByClass returns all instances of class and its subclasses.
	FetchByClass(ctx context.Context, class string) ([]*Instance, error)

	// FetchByAttribute returns instances of class whose attr matches op/value.
	// Value is an ID for instance attributes and a string otherwise; it is
	// ignored for OpIsNull and OpIsNotNull.
	FetchByAttribute(ctx context.Context, class, attr string, op Op, value any) ([]*Instance, error)

	// LoadAttributes bulk-hydrates attrs on instances. Attributes not declared
	// for an instance's class are skipped for that instance.
	LoadAttributes(ctx context.Context, instances []*Instance, attrs ...string) error

	// Existing returns the subset of ids present in the repository.
	Existing(ctx context.Context, ids []ID) (IDSet, error)

	// ReverseReferences returns instances whose attr references target.
	ReverseReferences(ctx context.Context, target *Instance, attr string) ([]*Instance, error)
}

// DiagramDocumentStore serves the raw serialized diagram documents
type DiagramDocumentStore interface {
	// GetRawDocument returns nil bytes and no error when no document is stored.
	GetRawDocument(ctx context.Context, diagramID ID) ([]byte, error)
}
