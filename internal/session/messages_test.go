package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func roomMessage(id, room, sender, text string, offset int) Message {
	return Message{
		ID:        id,
		Sender:    sender,
		SenderID:  "c-" + sender,
		Room:      room,
		Text:      text,
		Timestamp: base.Add(time.Duration(offset) * time.Second),
		ReadBy:    []string{"c-" + sender},
	}
}

func TestMessageStoreEvictsOldestGlobally(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(3)
	store.Append(roomMessage("1", "a", "alice", "one", 1))
	store.Append(roomMessage("2", "b", "bob", "two", 2))
	store.Append(roomMessage("3", "a", "alice", "three", 3))
	evicted := store.Append(roomMessage("4", "b", "bob", "four", 4))

	req.Equal([]string{"1"}, evicted)
	req.Equal(3, store.Len())
	_, ok := store.ByID("1")
	req.False(ok)

	recent := store.Recent("a", 10)
	req.Len(recent, 1)
	req.Equal("3", recent[0].ID)
}

func TestMessageStoreForgetsEvictedRooms(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(10)
	for i := 0; i < 5000; i++ {
		store.Append(roomMessage(fmt.Sprint(i), fmt.Sprintf("r%d", i), "alice", "hi", i))
	}
	req.Equal(10, store.Len())
	req.LessOrEqual(len(store.byRoom), 10)
	req.Empty(store.Recent("r0", 10))
	req.Len(store.Recent("r4999", 10), 1)
}

func TestMessageStoreIgnoresDuplicateIDs(t *testing.T) {
	store := NewMessageStore(10)
	store.Append(roomMessage("1", "a", "alice", "one", 1))
	store.Append(roomMessage("1", "a", "alice", "again", 2))
	require.Equal(t, 1, store.Len())
}

func TestPageBefore(t *testing.T) {
	store := NewMessageStore(100)
	for i := 1; i <= 10; i++ {
		store.Append(roomMessage(fmt.Sprint(i), "general", "alice", "msg", i))
	}
	store.Append(roomMessage("other", "random", "bob", "msg", 5))

	tests := []struct {
		name    string
		before  time.Time
		limit   int
		wantIDs []string
		hasMore bool
	}{
		{"newest page walks back from cutoff", base.Add(8 * time.Second), 3, []string{"5", "6", "7"}, true},
		{"short page", base.Add(3 * time.Second), 5, []string{"1", "2"}, false},
		{"exact fit still claims more", base.Add(4 * time.Second), 3, []string{"1", "2", "3"}, true},
		{"nothing older", base, 5, []string{}, false},
		{"zero limit", base.Add(time.Hour), 0, []string{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, hasMore := store.PageBefore("general", tt.before, tt.limit)
			ids := make([]string, 0, len(page))
			for _, m := range page {
				require.True(t, m.Timestamp.Before(tt.before))
				ids = append(ids, m.ID)
			}
			require.Equal(t, tt.wantIDs, ids)
			require.Equal(t, tt.hasMore, hasMore)
		})
	}
}

func TestSearchMatchesBodyOrSenderInRoom(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(100)
	store.Append(roomMessage("1", "general", "alice", "hello", 1))
	store.Append(roomMessage("2", "general", "bob", "ping ALICE", 2))
	store.Append(roomMessage("3", "general", "bob", "unrelated", 3))
	store.Append(roomMessage("4", "random", "alice", "elsewhere", 4))

	results := store.Search("general", "alice", 10)
	req.Len(results, 2)
	req.Equal("1", results[0].ID)
	req.Equal("2", results[1].ID)

	limited := store.Search("general", "Alice", 1)
	req.Len(limited, 1)
	req.Equal("2", limited[0].ID)
}

func TestPrivateMessagesStayOutOfRoomQueries(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(100)
	pm := roomMessage("p", "", "alice", "secret alice", 1)
	pm.Private = true
	store.Append(pm)

	req.Empty(store.Recent("", 10))
	req.Empty(store.Search("", "alice", 10))
	_, ok := store.ByID("p")
	req.True(ok)
	req.Len(store.All(), 1)
}

func TestToggleReactionIsItsOwnInverse(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(10)
	store.Append(roomMessage("1", "general", "alice", "hi", 1))

	msg, ok := store.ToggleReaction("1", "c-bob", "👍")
	req.True(ok)
	req.Equal([]string{"c-bob"}, msg.Reactions.Users("👍"))

	msg, ok = store.ToggleReaction("1", "c-bob", "👍")
	req.True(ok)
	req.Equal(0, msg.Reactions.Len())

	_, ok = store.ToggleReaction("missing", "c-bob", "👍")
	req.False(ok)
}

func TestMarkReadOnlyReportsChanges(t *testing.T) {
	req := require.New(t)
	store := NewMessageStore(10)
	store.Append(roomMessage("1", "general", "alice", "hi", 1))

	_, changed := store.MarkRead("1", "c-alice")
	req.False(changed)

	msg, changed := store.MarkRead("1", "c-bob")
	req.True(changed)
	req.Equal([]string{"c-alice", "c-bob"}, msg.ReadBy)

	_, changed = store.MarkRead("1", "c-bob")
	req.False(changed)
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewMessageStore(10)
	store.Append(roomMessage("1", "general", "alice", "hi", 1))
	msg, _ := store.ByID("1")
	msg.ReadBy[0] = "tampered"
	msg.Reactions.Toggle("x", "y")

	again, _ := store.ByID("1")
	require.Equal(t, []string{"c-alice"}, again.ReadBy)
	require.Equal(t, 0, again.Reactions.Len())
}
