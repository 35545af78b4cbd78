package license

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBusiness(owner string) *Business {
	return &Business{
		OwnerID:  owner,
		Name:     "Sharma Traders",
		Type:     "Private Limited",
		Industry: "Retail",
		Location: Location{Address: "12 MG Road", City: "Pune", State: "Maharashtra", Pincode: "411001"},
		Contact:  Contact{Email: "owner@sharma.example", Phone: "+919800000001"},
		RequiredLicenses: []License{
			{Type: "GST Registration", Department: "GSTN"},
			{Type: "MSME Registration", Department: "Ministry of MSME"},
		},
	}
}

// runStoreSuite exercises behaviour every backend shares.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("save and find", func(t *testing.T) {
		s := newStore(t)
		b := sampleBusiness("owner-1")
		require.NoError(t, s.SaveBusiness(ctx, b))
		require.NotEmpty(t, b.ID)

		byOwner, err := s.FindByOwner(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, b.ID, byOwner.ID)
		assert.Equal(t, "Pune", byOwner.Location.City)
		require.Len(t, byOwner.RequiredLicenses, 2)
		assert.Equal(t, StatusPending, byOwner.RequiredLicenses[0].Status)
		assert.Nil(t, byOwner.RequiredLicenses[0].ApplicationDate)

		byID, err := s.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "Sharma Traders", byID.Name)
	})

	t.Run("missing business", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindByOwner(ctx, "nobody")
		assert.ErrorIs(t, err, ErrBusinessNotFound)
		_, err = s.FindByID(ctx, "nope")
		assert.ErrorIs(t, err, ErrBusinessNotFound)
	})

	t.Run("update one license entry", func(t *testing.T) {
		s := newStore(t)
		b := sampleBusiness("owner-2")
		require.NoError(t, s.SaveBusiness(ctx, b))

		applied := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
		require.NoError(t, s.UpdateLicenseStatus(ctx, b.ID, "GST Registration", StatusApplied, &applied))

		got, err := s.FindByID(ctx, b.ID)
		require.NoError(t, err)
		gst, ok := got.License("GST Registration")
		require.True(t, ok)
		assert.Equal(t, StatusApplied, gst.Status)
		require.NotNil(t, gst.ApplicationDate)
		assert.True(t, applied.Equal(*gst.ApplicationDate))

		msme, ok := got.License("MSME Registration")
		require.True(t, ok)
		assert.Equal(t, StatusPending, msme.Status)
		assert.Nil(t, msme.ApplicationDate)
	})

	t.Run("update without date keeps existing date", func(t *testing.T) {
		s := newStore(t)
		b := sampleBusiness("owner-3")
		require.NoError(t, s.SaveBusiness(ctx, b))

		applied := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.UpdateLicenseStatus(ctx, b.ID, "MSME Registration", StatusApplied, &applied))
		require.NoError(t, s.UpdateLicenseStatus(ctx, b.ID, "MSME Registration", StatusPending, nil))

		got, err := s.FindByID(ctx, b.ID)
		require.NoError(t, err)
		msme, _ := got.License("MSME Registration")
		assert.Equal(t, StatusPending, msme.Status)
		require.NotNil(t, msme.ApplicationDate)
		assert.True(t, applied.Equal(*msme.ApplicationDate))
	})

	t.Run("update missing entries", func(t *testing.T) {
		s := newStore(t)
		b := sampleBusiness("owner-4")
		require.NoError(t, s.SaveBusiness(ctx, b))

		err := s.UpdateLicenseStatus(ctx, "missing", "GST Registration", StatusApplied, nil)
		assert.ErrorIs(t, err, ErrBusinessNotFound)

		err = s.UpdateLicenseStatus(ctx, b.ID, "Trade License", StatusApplied, nil)
		assert.ErrorIs(t, err, ErrLicenseNotFound)

		err = s.UpdateLicenseStatus(ctx, b.ID, "GST Registration", Status("lost"), nil)
		assert.Error(t, err)
	})

	t.Run("concurrent updates to different entries", func(t *testing.T) {
		s := newStore(t)
		b := sampleBusiness("owner-5")
		require.NoError(t, s.SaveBusiness(ctx, b))

		now := time.Now().UTC().Truncate(time.Millisecond)
		var wg sync.WaitGroup
		for _, lt := range []string{"GST Registration", "MSME Registration"} {
			wg.Add(1)
			go func(lt string) {
				defer wg.Done()
				assert.NoError(t, s.UpdateLicenseStatus(ctx, b.ID, lt, StatusApplied, &now))
			}(lt)
		}
		wg.Wait()

		got, err := s.FindByID(ctx, b.ID)
		require.NoError(t, err)
		for _, l := range got.RequiredLicenses {
			assert.Equal(t, StatusApplied, l.Status, l.Type)
		}
	})

	t.Run("invalid business rejected", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.SaveBusiness(ctx, &Business{Name: "no owner"}))
		assert.Error(t, s.SaveBusiness(ctx, &Business{OwnerID: "x"}))

		dup := sampleBusiness("owner-6")
		dup.RequiredLicenses = append(dup.RequiredLicenses, License{Type: "GST Registration"})
		assert.Error(t, s.SaveBusiness(ctx, dup))
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b := sampleBusiness("owner-copy")
	require.NoError(t, s.SaveBusiness(ctx, b))

	got, err := s.FindByID(ctx, b.ID)
	require.NoError(t, err)
	got.RequiredLicenses[0].Status = StatusApproved

	again, err := s.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.RequiredLicenses[0].Status)
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "regpilot.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		return s
	})
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "regpilot.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	b := sampleBusiness("owner-reopen")
	require.NoError(t, s.SaveBusiness(ctx, b))
	require.NoError(t, s.Close(ctx))

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close(ctx)

	got, err := s.FindByOwner(ctx, "owner-reopen")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("REGPILOT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("REGPILOT_TEST_MONGO_URI not set")
	}

	runStoreSuite(t, func(t *testing.T) Store {
		ctx := context.Background()
		db := "regpilot_test_" + time.Now().Format("150405.000000")
		s, err := OpenMongo(ctx, MongoOptions{URI: uri, Database: sanitizeDBName(db)})
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.client.Database(sanitizeDBName(db)).Drop(context.Background())
			_ = s.Close(context.Background())
		})
		return s
	})
}

func sanitizeDBName(name string) string {
	out := []rune(name)
	for i, r := range out {
		if r == '.' {
			out[i] = '_'
		}
	}
	return string(out)
}
