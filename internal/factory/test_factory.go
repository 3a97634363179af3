package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/dependencies/mocks"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/auth"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage/memory"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/testutil"
)

// TestAdminToken is accepted by the admin routes of a TestApp
const TestAdminToken = "adm_test_token"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock   *mocks.MockClock
	MockRandom  *mocks.MockRandom
	MockFetcher *mocks.MockFetcher
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	mockFetcher := mocks.NewMockFetcher()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestAdminToken), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	cfg := Config{
		AuthConfig: auth.Config{TokenHashes: []string{string(hash)}},
	}

	app := newWithDependencies(store, mockClock, mockRandom, mockFetcher, mockFetcher, cfg, testutil.NopLogger())

	return &TestApp{
		App:         app,
		MockClock:   mockClock,
		MockRandom:  mockRandom,
		MockFetcher: mockFetcher,
	}
}
