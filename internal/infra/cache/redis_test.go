package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/events"
	"github.com/MRamiBalles/PetGuild/internal/platform/clock"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
)

// MockRedisClient is a mock implementation of RedisClient
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockRedisClient) Del(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *MockRedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockRedisClient) HSet(ctx context.Context, key string, values ...interface{}) error {
	args := m.Called(ctx, key, values)
	return args.Error(0)
}

func (m *MockRedisClient) HDel(ctx context.Context, key string, fields ...string) error {
	args := m.Called(ctx, key, fields)
	return args.Error(0)
}

func (m *MockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	args := m.Called(ctx, key, expiration)
	return args.Error(0)
}

var t0 = time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

// expectWrite accepts every write of petID and records the last payload.
func expectWrite(rdb *MockRedisClient, tenant, petID string, ttl time.Duration, last *[]byte) {
	rdb.On("Set", mock.Anything, "petguild:"+tenant+":pet:"+petID, mock.AnythingOfType("[]uint8"), ttl).
		Run(func(args mock.Arguments) { *last = args.Get(2).([]byte) }).
		Return(nil)
	rdb.On("HSet", mock.Anything, "petguild:"+tenant+":pets", mock.MatchedBy(func(v []interface{}) bool {
		return len(v) == 2 && v[0] == petID
	})).Return(nil)
	rdb.On("Expire", mock.Anything, "petguild:"+tenant+":pets", ttl).Return(nil)
}

func decodeState(t *testing.T, data []byte) PetState {
	t.Helper()
	var state PetState
	require.NoError(t, json.Unmarshal(data, &state))
	return state
}

func TestNotifyCachesPetFromEvent(t *testing.T) {
	// Setup
	rdb := new(MockRedisClient)
	var stored []byte
	expectWrite(rdb, "g1", "pet_1", DefaultTTL, &stored)
	c := NewPetCache(rdb, 0, logger.NewNop(), metrics.NewNop())
	p := pet.New("pet_1", "u1", pet.SpeciesDragon, t0)
	p.Hunger = 61

	// Act
	err := c.Notify(context.Background(), events.Event{
		Seq: 7, Timestamp: t0, Tenant: "g1", Type: events.EventTypePetFed, PetID: "pet_1", Pet: &p,
	})

	// Assert
	require.NoError(t, err)
	rdb.AssertExpectations(t)
	state := decodeState(t, stored)
	assert.Equal(t, 61, state.Hunger)
	assert.Equal(t, pet.SpeciesDragon, state.Species)
	assert.Equal(t, "🐉👶", state.Emoji)
	assert.Equal(t, uint64(7), state.LastSeq)
	assert.Equal(t, t0.Unix(), state.LastSync)
}

func TestNotifyIgnoresEventsWithoutPet(t *testing.T) {
	rdb := new(MockRedisClient)
	c := NewPetCache(rdb, time.Minute, logger.NewNop(), metrics.NewNop())

	require.NoError(t, c.Notify(context.Background(), events.Event{Tenant: "g1", Type: events.EventTypeShopPurchase}))
	rdb.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	rdb.AssertNotCalled(t, "HSet", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotifyReportsWriteFailure(t *testing.T) {
	rdb := new(MockRedisClient)
	rdb.On("Set", mock.Anything, "petguild:g1:pet:pet_1", mock.Anything, time.Minute).
		Return(errors.New("connection refused"))
	c := NewPetCache(rdb, time.Minute, logger.NewNop(), metrics.NewNop())
	p := pet.New("pet_1", "u1", pet.SpeciesCat, t0)

	err := c.Notify(context.Background(), events.Event{Tenant: "g1", PetID: "pet_1", Pet: &p})

	assert.Error(t, err)
	rdb.AssertNotCalled(t, "HSet", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetPetState(t *testing.T) {
	rdb := new(MockRedisClient)
	data, err := json.Marshal(PetState{Pet: pet.New("pet_1", "u1", pet.SpeciesFish, t0), LastSeq: 3})
	require.NoError(t, err)
	rdb.On("Get", mock.Anything, "petguild:g1:pet:pet_1").Return(string(data), nil)
	rdb.On("Get", mock.Anything, "petguild:g1:pet:nope").Return("", ErrMiss)
	c := NewPetCache(rdb, time.Minute, logger.NewNop(), metrics.NewNop())

	state, err := c.GetPetState(context.Background(), "g1", "pet_1")
	require.NoError(t, err)
	assert.Equal(t, pet.SpeciesFish, state.Species)
	assert.Equal(t, uint64(3), state.LastSeq)

	_, err = c.GetPetState(context.Background(), "g1", "nope")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestGetTenantPets(t *testing.T) {
	rdb := new(MockRedisClient)
	one, err := json.Marshal(PetState{Pet: pet.New("pet_1", "u1", pet.SpeciesFish, t0)})
	require.NoError(t, err)
	rdb.On("HGetAll", mock.Anything, "petguild:g1:pets").Return(map[string]string{"pet_1": string(one)}, nil)
	rdb.On("HGetAll", mock.Anything, "petguild:g2:pets").Return(map[string]string{"pet_9": "{"}, nil)
	c := NewPetCache(rdb, time.Minute, logger.NewNop(), metrics.NewNop())

	all, err := c.GetTenantPets(context.Background(), "g1")
	require.NoError(t, err)
	require.Contains(t, all, "pet_1")
	assert.Equal(t, "u1", all["pet_1"].OwnerID)

	_, err = c.GetTenantPets(context.Background(), "g2")
	assert.Error(t, err)
}

func TestInvalidate(t *testing.T) {
	// Setup
	rdb := new(MockRedisClient)
	rdb.On("Del", mock.Anything, []string{"petguild:g1:pet:pet_1"}).Return(nil)
	rdb.On("HDel", mock.Anything, "petguild:g1:pets", []string{"pet_1"}).Return(nil)
	rdb.On("Del", mock.Anything, []string{"petguild:g1:pets"}).Return(nil)
	c := NewPetCache(rdb, time.Minute, logger.NewNop(), metrics.NewNop())
	ctx := context.Background()

	// Act
	require.NoError(t, c.InvalidatePet(ctx, "g1", "pet_1"))
	require.NoError(t, c.InvalidateTenant(ctx, "g1"))

	// Assert
	rdb.AssertExpectations(t)
}

func TestCacheFollowsEventLog(t *testing.T) {
	// Setup
	rdb := new(MockRedisClient)
	var stored []byte
	expectWrite(rdb, "g1", "pet_1", time.Minute, &stored)
	c := NewPetCache(rdb, time.Minute, logger.NewNop(), metrics.NewNop())
	el := events.NewEventLog(clock.NewFake(t0), logger.NewNop(), metrics.NewNop())
	el.Subscribe(c)
	p := pet.New("pet_1", "u1", pet.SpeciesBird, t0)

	// Act
	el.Append(events.Event{Tenant: "g1", Type: events.EventTypePetAdopted, ActorID: "u1", PetID: "pet_1", Pet: &p})
	p.Health = 0
	el.Append(events.Event{Tenant: "g1", Type: events.EventTypePetDied, ActorID: "u1", PetID: "pet_1", Pet: &p})

	// Assert
	rdb.AssertNumberOfCalls(t, "Set", 2)
	state := decodeState(t, stored)
	assert.False(t, state.Alive())
	assert.Equal(t, uint64(2), state.LastSeq)
}
