package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"legacylens/internal/apperrors"

	"github.com/stretchr/testify/assert"
)

func TestIsLayerViolation(t *testing.T) {
	assert.True(t, IsLayerViolation(LevelData, LevelPresentation), "data must not depend on presentation")
	assert.True(t, IsLayerViolation(LevelDomain, LevelBusiness))
	assert.False(t, IsLayerViolation(LevelPresentation, LevelBusiness))
	assert.False(t, IsLayerViolation(LevelBusiness, LevelBusiness))
	assert.False(t, IsLayerViolation(LevelUnranked, LevelPresentation), "cross-cutting is exempt")
	assert.False(t, IsLayerViolation(LevelData, TierCrossCutting.Level()))
}

func TestTierLevelsAscendInward(t *testing.T) {
	assert.Less(t, TierPresentation.Level(), TierBusiness.Level())
	assert.Less(t, TierBusiness.Level(), TierData.Level())
	assert.Less(t, TierData.Level(), TierDomain.Level())
	assert.Equal(t, LevelUnranked, TierUnknown.Level())
}

func TestRelationshipPrecedence(t *testing.T) {
	for i := 1; i < len(RelationshipTypes); i++ {
		assert.Greater(t, RelationshipTypes[i-1].Precedence(), RelationshipTypes[i].Precedence())
	}
	assert.Equal(t, 0, RelationshipType("bogus").Precedence())
}

func TestWarningFromError(t *testing.T) {
	t.Run("io error keeps path", func(t *testing.T) {
		w := WarningFromError(PhaseCrawl, apperrors.NewIOError("read", "a/b.cs", errors.New("denied")))
		assert.Equal(t, string(apperrors.KindIO), w.Kind)
		assert.Equal(t, SeverityWarning, w.Severity)
		assert.Equal(t, "a/b.cs", w.Path)
		assert.Equal(t, PhaseCrawl, w.Phase)
	})

	t.Run("wrapped critical error", func(t *testing.T) {
		err := fmt.Errorf("run: %w", apperrors.NewCriticalError(PhaseCodeAnalysis, "analyzing_code", errors.New("boom")))
		w := WarningFromError(PhasePipeline, err)
		assert.Equal(t, SeverityCritical, w.Severity)
		assert.Equal(t, string(apperrors.KindCritical), w.Kind)
	})

	t.Run("cancellation", func(t *testing.T) {
		w := WarningFromError(PhaseCrawl, context.Canceled)
		assert.Equal(t, string(apperrors.KindCancelled), w.Kind)
	})
}

func TestRelationshipProjections(t *testing.T) {
	m := &RelationshipMapping{Relationships: []Relationship{
		{Source: "A", Target: "B", Type: RelInheritance},
		{Source: "A.M()", Target: "B.N()", Type: RelMethodCall},
		{Source: "A.P()", Target: "B.N()", Type: RelMethodCall},
	}}
	assert.Len(t, m.Inheritance(), 1)
	assert.Len(t, m.MethodCalls(), 2)
	assert.Empty(t, m.Compositions())
}
