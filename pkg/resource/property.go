package resource

import (
	"github.com/kmspipe/kmspipe-go/pkg/kms"
)

// Property is one hardware object property: its definition plus the value
// cached at fetch time. The zero value means "not fetched"; ID reports 0.
type Property struct {
	id    uint32
	name  string
	value uint64
	flags kms.PropertyFlags
}

// ID returns the kernel property id, 0 for the zero Property.
func (p Property) ID() uint32 { return p.id }

// Name returns the property name.
func (p Property) Name() string { return p.name }

// Value returns the value cached when the property was fetched.
func (p Property) Value() uint64 { return p.value }

// Flags returns the property's kernel flags.
func (p Property) Flags() kms.PropertyFlags { return p.flags }

// Valid reports whether the property was fetched.
func (p Property) Valid() bool { return p.id != 0 }
