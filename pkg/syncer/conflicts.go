// Package syncer runs the periodic synchronization loop: it drains the
// local outbox, detects conflicts against hosted state, and pushes clean
// changes through a source's mutation surface.
package syncer

import (
	"fmt"
	"time"

	"github.com/discordwell/ticketbridge/pkg/metrics"
	"github.com/discordwell/ticketbridge/pkg/models"
)

// ReasonHostedDeleted marks a change whose hosted entity no longer exists.
const ReasonHostedDeleted = "deleted on hosted side"

// ReasonHostedNewer reports when the hosted copy was last changed.
func ReasonHostedNewer(updatedAt time.Time) string {
	return fmt.Sprintf("hosted was updated at %s", updatedAt.UTC().Format(time.RFC3339))
}

// DetectConflicts compares pending local changes against a hosted snapshot.
// Creates never conflict: the entity cannot exist remotely yet. Updates and
// deletes conflict when the hosted entity is gone, or when the hosted copy
// changed after the local change was recorded. A hosted timestamp exactly
// equal to the change's is not a conflict.
func DetectConflicts(changes []models.LocalChange, hosted map[string]models.HostedEntity) []models.Conflict {
	var conflicts []models.Conflict

	for _, change := range changes {
		if change.Operation == models.OpCreate {
			continue
		}

		entity, ok := hosted[change.EntityID]
		if !ok {
			conflicts = append(conflicts, models.Conflict{
				OutboxID:      change.ID,
				EntityID:      change.EntityID,
				EntityType:    change.EntityType,
				LocalChange:   change,
				HostedVersion: nil,
				Reason:        ReasonHostedDeleted,
			})
			metrics.ConflictsDetected.WithLabelValues("hosted_deleted").Inc()
			continue
		}

		if entity.UpdatedAt.After(change.CreatedAt) {
			hostedCopy := entity
			conflicts = append(conflicts, models.Conflict{
				OutboxID:      change.ID,
				EntityID:      change.EntityID,
				EntityType:    change.EntityType,
				LocalChange:   change,
				HostedVersion: &hostedCopy,
				Reason:        ReasonHostedNewer(entity.UpdatedAt),
			})
			metrics.ConflictsDetected.WithLabelValues("hosted_newer").Inc()
		}
	}

	return conflicts
}

// PartitionChanges splits changes into pushable and conflicted sets,
// preserving the original ordering within each. Every input change lands in
// exactly one of the two outputs.
func PartitionChanges(changes []models.LocalChange, conflicts []models.Conflict) (clean, conflicted []models.LocalChange) {
	conflictedIDs := make(map[string]struct{}, len(conflicts))
	for _, c := range conflicts {
		conflictedIDs[c.OutboxID] = struct{}{}
	}

	for _, change := range changes {
		if _, ok := conflictedIDs[change.ID]; ok {
			conflicted = append(conflicted, change)
		} else {
			clean = append(clean, change)
		}
	}
	return clean, conflicted
}
