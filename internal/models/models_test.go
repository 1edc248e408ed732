package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected FilterPolicy
		wantErr  bool
	}{
		{"tracked_only", PolicyTrackedOnly, false},
		{"tracked_or_extended", PolicyTrackedOrExtended, false},
		{"tracked_or_extended_or_limited", PolicyTrackedOrExtendedOrLimited, false},
		{"", DefaultPolicy, false}, // Пустая строка — политика по умолчанию
		{"all", 0, true},
		{"TRACKED_ONLY", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			policy, err := ParsePolicy(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, policy)
		})
	}
}

func TestPolicy_RoundTrip(t *testing.T) {
	for _, policy := range []FilterPolicy{PolicyTrackedOnly, PolicyTrackedOrExtended, PolicyTrackedOrExtendedOrLimited} {
		parsed, err := ParsePolicy(policy.String())
		require.NoError(t, err)
		assert.Equal(t, policy, parsed)
	}
}

func TestPolicy_Valid(t *testing.T) {
	assert.True(t, PolicyTrackedOnly.Valid())
	assert.True(t, DefaultPolicy.Valid())
	assert.False(t, FilterPolicy(3).Valid())
	assert.False(t, FilterPolicy(200).Valid())
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		input    string
		expected TrackingConfidence
		wantErr  bool
	}{
		{"not_observed", ConfidenceNotObserved, false},
		{"limited", ConfidenceLimited, false},
		{"extended_tracked", ConfidenceExtendedTracked, false},
		{"tracked", ConfidenceTracked, false},
		{"", 0, true}, // Уровень уверенности обязателен
		{"solid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			confidence, err := ParseConfidence(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, confidence)
		})
	}
}

func TestParseStatusInfo(t *testing.T) {
	info, err := ParseStatusInfo("")
	require.NoError(t, err)
	assert.Equal(t, StatusInfoNormal, info)

	info, err = ParseStatusInfo("wrong_scale")
	require.NoError(t, err)
	assert.Equal(t, StatusInfoWrongScale, info)

	_, err = ParseStatusInfo("broken")
	assert.Error(t, err)
}

func TestInitialStatus(t *testing.T) {
	status := InitialStatus()
	assert.Equal(t, ConfidenceNotObserved, status.Confidence)
	assert.Equal(t, StatusInfoNormal, status.Info)
}

func TestTarget_Validate(t *testing.T) {
	valid := &Target{
		ID:     "anchor-1",
		Policy: DefaultPolicy,
		Anchor: &GeoPoint{Latitude: 46.5, Longitude: 8.25},
	}
	assert.NoError(t, valid.Validate())

	noID := &Target{Policy: DefaultPolicy}
	assert.Error(t, noID.Validate())

	badPolicy := &Target{ID: "anchor-1", Policy: FilterPolicy(7)}
	assert.Error(t, badPolicy.Validate())

	badAnchor := &Target{
		ID:     "anchor-1",
		Policy: DefaultPolicy,
		Anchor: &GeoPoint{Latitude: 95, Longitude: 8.25},
	}
	assert.Error(t, badAnchor.Validate())
}

func TestTarget_IsStale(t *testing.T) {
	target := &Target{ID: "anchor-1", LastUpdate: time.Now().Add(-time.Minute)}
	assert.True(t, target.IsStale(30*time.Second))
	assert.False(t, target.IsStale(2*time.Minute))
}

func TestTransitionEvent_Validate(t *testing.T) {
	valid := &TransitionEvent{TargetID: "anchor-1", Kind: TransitionFound, At: time.Now()}
	assert.NoError(t, valid.Validate())

	assert.Error(t, (&TransitionEvent{Kind: TransitionFound}).Validate())
	assert.Error(t, (&TransitionEvent{TargetID: "anchor-1", Kind: "flipped"}).Validate())
}

func TestGeoPoint_Validate(t *testing.T) {
	assert.NoError(t, GeoPoint{Latitude: 46.5, Longitude: 8.25}.Validate())
	assert.Error(t, GeoPoint{Latitude: 95, Longitude: 8.25}.Validate())
	assert.Error(t, GeoPoint{Latitude: 46.5, Longitude: 181}.Validate())
}

func TestGeoPoint_DistanceTo(t *testing.T) {
	zurich := GeoPoint{Latitude: 47.3769, Longitude: 8.5417}
	bern := GeoPoint{Latitude: 46.9480, Longitude: 7.4474}

	assert.InDelta(t, 0, zurich.DistanceTo(zurich), 1e-9)
	assert.InDelta(t, 95, zurich.DistanceTo(bern), 5)
}

func TestGeoPoint_Geohash(t *testing.T) {
	point := GeoPoint{Latitude: 47.3769, Longitude: 8.5417}
	assert.Equal(t, "u0qjd", point.Geohash(5))
	assert.Len(t, point.Geohash(9), 9)
}
