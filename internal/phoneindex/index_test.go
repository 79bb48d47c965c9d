package phoneindex

import (
	"context"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotel-messaging/internal/models"
	"hotel-messaging/internal/storage"
)

var (
	archiveA = Archive{Name: "instay_output-2024-03-01.csv", Rows: []models.FieldTuple{
		{FirstName: "Ana", LastName: "Ruiz", Phone: "+34600111222", CheckoutDate: "2024-03-01", RoomNumber: "204"},
		{FirstName: "Bob", Phone: "15550100", CheckoutDate: "soon"},
		{FirstName: "No", LastName: "Phone"},
	}}
	archiveB = Archive{Name: "instay_output-2024-03-08.csv", Rows: []models.FieldTuple{
		{FirstName: "Ana", LastName: "Ruiz", Phone: "34600111222", CheckoutDate: "10.03.2024", RoomNumber: "310"},
		{FirstName: "Bob", Phone: "+1 555 0100", CheckoutDate: "2024-02-01"},
	}}
	archiveC = Archive{Name: "instay_output-2024-03-15.csv", Rows: []models.FieldTuple{
		{FirstName: "", Phone: "34600111222", CheckoutDate: "2024-03-09"},
		{FirstName: "Cleo", Phone: "447000111"},
	}}
)

func signatures(idx Index) map[models.PhoneKey][]string {
	out := make(map[models.PhoneKey][]string)
	for k, e := range idx {
		for _, o := range e.Occurrences {
			out[k] = append(out[k], o.Signature())
		}
		sort.Strings(out[k])
	}
	return out
}

func TestBuild_SkipsEmptyKeysAndDedupes(t *testing.T) {
	rows := append(append([]models.FieldTuple{}, archiveA.Rows...), archiveA.Rows[0])
	idx := Build(archiveA.Name, rows)
	require.Len(t, idx, 2)
	assert.Len(t, idx["34600111222"].Occurrences, 1)
	assert.Equal(t, "Ana Ruiz", idx["34600111222"].Name)
	assert.Equal(t, "soon", idx["15550100"].LatestCheckout)
}

func TestMerge_Idempotent(t *testing.T) {
	once := Merge(Index{}, Build(archiveA.Name, archiveA.Rows))
	twice := Merge(once, Build(archiveA.Name, archiveA.Rows))
	assert.Equal(t, once, twice)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	existing := Build(archiveA.Name, archiveA.Rows)
	before := existing.Clone()
	_ = Merge(existing, Build(archiveB.Name, archiveB.Rows))
	assert.Equal(t, before, existing)
}

func TestMerge_OccurrenceSetsOrderIndependent(t *testing.T) {
	ab := BuildArchives([]Archive{archiveA, archiveB})
	abThenC := Merge(ab, Build(archiveC.Name, archiveC.Rows))

	bc := BuildArchives([]Archive{archiveB, archiveC})
	aThenBC := Merge(Build(archiveA.Name, archiveA.Rows), bc)

	cba := BuildArchives([]Archive{archiveC, archiveB, archiveA})

	assert.Equal(t, signatures(abThenC), signatures(aThenBC))
	assert.Equal(t, signatures(abThenC), signatures(cba))
	assert.Equal(t, abThenC.Occurrences(), 6)
}

func TestMerge_LatestCheckoutPrefersParseableLatest(t *testing.T) {
	ab := BuildArchives([]Archive{archiveA, archiveB, archiveC})
	assert.Equal(t, "10.03.2024", ab["34600111222"].LatestCheckout)
	// "soon" loses to the parseable date from the later archive.
	assert.Equal(t, "2024-02-01", ab["15550100"].LatestCheckout)

	reversed := BuildArchives([]Archive{archiveC, archiveB, archiveA})
	assert.Equal(t, "10.03.2024", reversed["34600111222"].LatestCheckout)
	assert.Equal(t, "2024-02-01", reversed["15550100"].LatestCheckout)
}

func TestMerge_ExistingNameWins(t *testing.T) {
	existing := Index{"34600111222": {Name: "Ana Maria"}}
	merged := Merge(existing, Build(archiveA.Name, archiveA.Rows))
	assert.Equal(t, "Ana Maria", merged["34600111222"].Name)

	unnamed := Index{"34600111222": {}}
	merged = Merge(unnamed, Build(archiveA.Name, archiveA.Rows))
	assert.Equal(t, "Ana Ruiz", merged["34600111222"].Name)
}

func TestLatest(t *testing.T) {
	assert.Equal(t, "", Latest(nil))
	assert.Equal(t, "tbd", Latest([]string{"", "tbd", "later"}))
	assert.Equal(t, "2024-03-02", Latest([]string{"tbd", "01.03.2024", "2024-03-02"}))
	assert.Equal(t, "01.03.2024", Latest([]string{"01.03.2024", "2024-03-01"}))
}

func TestStore_RecordObservationsPersistsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	kv, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	s, err := Load(ctx, kv, zerolog.Nop())
	require.NoError(t, err)

	added, err := s.RecordObservations(ctx, archiveA.Name, archiveA.Rows)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.RecordObservations(ctx, archiveA.Name, archiveA.Rows)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	added, err = s.RecordObservations(ctx, archiveB.Name, archiveB.Rows)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	kv2, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	reloaded, err := Load(ctx, kv2, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, s.All(), reloaded.All())

	e, ok := reloaded.Get("34600111222")
	require.True(t, ok)
	assert.Len(t, e.Occurrences, 2)
	assert.Equal(t, "10.03.2024", e.LatestCheckout)
}
