package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDigestStable(t *testing.T) {
	rec := IRObject{"id": IRInt(1), "name": IRString("go"), "price": MustDecimal("1.50")}

	a, err := RecordDigest("Tag", rec)
	require.NoError(t, err)
	b, err := RecordDigest("Tag", rec.Clone())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestRecordDigestChanges(t *testing.T) {
	rec := IRObject{"id": IRInt(1), "name": IRString("go")}
	base, err := RecordDigest("Tag", rec)
	require.NoError(t, err)

	changed := rec.Clone()
	changed["name"] = IRString("rust")
	other, err := RecordDigest("Tag", changed)
	require.NoError(t, err)
	assert.NotEqual(t, base, other)

	otherEntity, err := RecordDigest("Collection", rec)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherEntity, "entity name is part of the digest")

	// Decimal scale is significant: 1.5 and 1.50 are different stored values.
	d1, _ := RecordDigest("P", IRObject{"p": MustDecimal("1.5")})
	d2, _ := RecordDigest("P", IRObject{"p": MustDecimal("1.50")})
	assert.NotEqual(t, d1, d2)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainRecord, data), hashWithDomain(DomainSpec, data))
}

func TestSpecDigest(t *testing.T) {
	spec := EntitySpec{Name: "Tag", Table: "tags", Fields: []FieldSpec{{Name: "name", Type: TypeString}}}

	a, err := SpecDigest(spec)
	require.NoError(t, err)

	spec.Fields[0].Required = true
	b, err := SpecDigest(spec)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
