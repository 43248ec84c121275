package memory

import (
	"context"
	"testing"
	"time"

	id "dossier/pkg/domain"
	audit "dossier/pkg/platform/audit"
	"dossier/pkg/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(actor id.UserID, action audit.Action, target string, at time.Time) audit.Entry {
	return audit.Entry{
		ID:         id.EntryID(uuid.New()),
		ActorID:    actor,
		Action:     action,
		TargetKind: audit.TargetItem,
		TargetID:   target,
		Category:   action.Category(),
		Details:    map[string]string{"remark": "original"},
		Timestamp:  at,
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	subject := id.UserID(uuid.New())
	reviewer := id.UserID(uuid.New())
	base := testutil.FixedTime

	testutil.Given(t, "a subject upload followed by two reviewer decisions", func(t *testing.T) {
		store := NewInMemoryStore()
		require.NoError(t, store.Append(ctx, entry(subject, audit.ActionEvidenceUploaded, "item-1", base)))
		require.NoError(t, store.Append(ctx, entry(reviewer, audit.ActionItemApproved, "item-1", base.Add(time.Minute))))
		require.NoError(t, store.Append(ctx, entry(reviewer, audit.ActionItemFlagged, "item-2", base.Add(time.Minute))))

		testutil.When(t, "listing without a filter", func(t *testing.T) {
			got, err := store.List(ctx, audit.Filter{})
			require.NoError(t, err)

			testutil.Then(t, "entries come back newest first", func(t *testing.T) {
				require.Len(t, got, 3)
				assert.Equal(t, audit.ActionItemFlagged, got[0].Action)
				assert.Equal(t, audit.ActionItemApproved, got[1].Action)
				assert.Equal(t, audit.ActionEvidenceUploaded, got[2].Action)
			})
		})

		testutil.When(t, "filtering by actor and target", func(t *testing.T) {
			got, err := store.List(ctx, audit.Filter{ActorID: reviewer, TargetID: "item-1"})
			require.NoError(t, err)

			testutil.Then(t, "only the matching decision is returned", func(t *testing.T) {
				require.Len(t, got, 1)
				assert.Equal(t, audit.ActionItemApproved, got[0].Action)
			})
		})

		testutil.When(t, "a limit is set", func(t *testing.T) {
			got, err := store.List(ctx, audit.Filter{Limit: 2})
			require.NoError(t, err)

			testutil.Then(t, "the newest entries fill it", func(t *testing.T) {
				require.Len(t, got, 2)
				assert.Equal(t, audit.ActionItemFlagged, got[0].Action)
			})
		})

		testutil.When(t, "a caller edits a listed entry", func(t *testing.T) {
			got, err := store.List(ctx, audit.Filter{Action: audit.ActionItemFlagged})
			require.NoError(t, err)
			got[0].Details["remark"] = "rewritten"

			testutil.Then(t, "the stored entry is unchanged", func(t *testing.T) {
				again, err := store.List(ctx, audit.Filter{Action: audit.ActionItemFlagged})
				require.NoError(t, err)
				assert.Equal(t, "original", again[0].Details["remark"])
			})
		})

		testutil.When(t, "the store is cleared", func(t *testing.T) {
			store.Clear()
			got, err := store.List(ctx, audit.Filter{})
			require.NoError(t, err)

			testutil.Then(t, "nothing is listed", func(t *testing.T) {
				assert.Empty(t, got)
			})
		})
	})
}
