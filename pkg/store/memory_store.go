package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"inspirestack/pkg/domain"
	"inspirestack/pkg/ranking"
)

type memContent struct {
	item    domain.ContentItem
	deleted bool
}

type memTag struct {
	id      int64
	name    string
	deleted bool
}

type memVote struct {
	record    domain.VoteRecord
	createdAt time.Time
}

type memComment struct {
	comment domain.Comment
	deleted bool
}

// MemoryStore is an in-process Store used by tests and local runs. It keeps
// the same uniqueness rules as the database schema.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[int64]domain.User
	categories []domain.Category
	content    map[domain.Ref]*memContent
	tags       map[string]*memTag
	links      map[domain.Ref]map[int64]struct{}
	votes      map[int64]*memVote
	voteIndex  map[voteKey]int64
	comments   map[int64]*memComment

	nextUser     int64
	nextCategory int64
	nextContent  map[domain.ContentType]int64
	nextTag      int64
	nextVote     int64
	nextComment  int64
}

type voteKey struct {
	target domain.Ref
	userID int64
}

// NewMemoryStore returns an empty store seeded with DefaultCategories.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		users:       make(map[int64]domain.User),
		content:     make(map[domain.Ref]*memContent),
		tags:        make(map[string]*memTag),
		links:       make(map[domain.Ref]map[int64]struct{}),
		votes:       make(map[int64]*memVote),
		voteIndex:   make(map[voteKey]int64),
		comments:    make(map[int64]*memComment),
		nextContent: make(map[domain.ContentType]int64),
	}
	_ = s.UpsertCategories(context.Background(), DefaultCategories)
	return s
}

func (s *MemoryStore) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return domain.User{}, fmt.Errorf("%w: username or email already registered", domain.ErrConflict)
		}
	}
	s.nextUser++
	u.ID = s.nextUser
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Kind == "" {
		u.Kind = domain.AccountLocal
	}
	if u.Theme == "" {
		u.Theme = domain.ThemeLight
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id int64) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) UpdateUserTheme(_ context.Context, id int64, theme domain.Theme) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, false, nil
	}
	u.Theme = theme
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return u, true, nil
}

func (s *MemoryStore) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, len(s.categories))
	copy(out, s.categories)
	return out, nil
}

func (s *MemoryStore) UpsertCategories(_ context.Context, categories []domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range categories {
		replaced := false
		for i := range s.categories {
			if s.categories[i].Slug == c.Slug {
				c.ID = s.categories[i].ID
				s.categories[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			s.nextCategory++
			c.ID = s.nextCategory
			s.categories = append(s.categories, c)
		}
	}
	return nil
}

func (s *MemoryStore) CreateContent(_ context.Context, item domain.ContentItem, tags []string) (domain.ContentItem, error) {
	if item.Body == nil {
		return domain.ContentItem{}, fmt.Errorf("%w: content body required", domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := item.Type()
	key := strings.Join(item.Body.DuplicateKey(), "\x00")
	for ref, c := range s.content {
		if ref.Type != t || c.deleted {
			continue
		}
		if c.item.CategoryID == item.CategoryID && c.item.UserID == item.UserID &&
			strings.Join(c.item.Body.DuplicateKey(), "\x00") == key {
			return domain.ContentItem{}, fmt.Errorf("%w: %s already exists", domain.ErrConflict, t)
		}
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.UpdatedAt = item.CreatedAt
	s.nextContent[t]++
	item.ID = s.nextContent[t]
	s.content[item.Ref()] = &memContent{item: item}
	s.linkTagsLocked(item.Ref(), tags)
	return item, nil
}

func (s *MemoryStore) linkTagsLocked(ref domain.Ref, names []string) {
	for _, name := range names {
		tag, ok := s.tags[name]
		if !ok {
			s.nextTag++
			tag = &memTag{id: s.nextTag, name: name}
			s.tags[name] = tag
		}
		tag.deleted = false
		if s.links[ref] == nil {
			s.links[ref] = make(map[int64]struct{})
		}
		s.links[ref][tag.id] = struct{}{}
	}
}

func (s *MemoryStore) liveContentLocked(ref domain.Ref) (*memContent, bool) {
	c, ok := s.content[ref]
	if !ok || c.deleted {
		return nil, false
	}
	return c, true
}

func (s *MemoryStore) GetContent(_ context.Context, ref domain.Ref) (domain.ContentItem, bool, error) {
	if !ref.Type.Valid() {
		return domain.ContentItem{}, false, fmt.Errorf("%w: invalid content type %q", domain.ErrInvalidArgument, ref.Type)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.liveContentLocked(ref)
	if !ok {
		return domain.ContentItem{}, false, nil
	}
	return c.item, true, nil
}

func (s *MemoryStore) UpdateContent(_ context.Context, ref domain.Ref, userID int64, patch domain.ContentPatch) (bool, error) {
	if patch.Body == nil || patch.Body.Type() != ref.Type {
		return false, fmt.Errorf("%w: body does not match %s", domain.ErrInvalidArgument, ref.Type)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.liveContentLocked(ref)
	if !ok || c.item.UserID != userID {
		return false, nil
	}
	c.item.Body = patch.Body
	c.item.CategoryID = patch.CategoryID
	c.item.UpdatedAt = time.Now().UTC()
	s.linkTagsLocked(ref, patch.Tags)
	return true, nil
}

func (s *MemoryStore) SoftDeleteContent(_ context.Context, ref domain.Ref, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.liveContentLocked(ref)
	if !ok || c.item.UserID != userID {
		return false, nil
	}
	c.deleted = true
	c.item.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) ListTags(_ context.Context, ref domain.Ref) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tagNamesLocked(ref), nil
}

func (s *MemoryStore) tagNamesLocked(ref domain.Ref) []string {
	names := []string{}
	for _, tag := range s.tags {
		if tag.deleted {
			continue
		}
		if _, ok := s.links[ref][tag.id]; ok {
			names = append(names, tag.name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *MemoryStore) GetVote(_ context.Context, target domain.Ref, userID int64) (domain.VoteRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.voteIndex[voteKey{target: target, userID: userID}]
	if !ok {
		return domain.VoteRecord{}, false, nil
	}
	return s.votes[id].record, true, nil
}

func (s *MemoryStore) InsertVote(_ context.Context, target domain.Ref, userID int64, dir domain.VoteDirection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{target: target, userID: userID}
	if _, exists := s.voteIndex[key]; exists {
		return fmt.Errorf("%w: vote already recorded", domain.ErrConflict)
	}
	s.nextVote++
	s.votes[s.nextVote] = &memVote{
		record: domain.VoteRecord{
			ID:        s.nextVote,
			Target:    target,
			UserID:    userID,
			Direction: dir,
		},
		createdAt: time.Now().UTC(),
	}
	s.voteIndex[key] = s.nextVote
	return nil
}

func (s *MemoryStore) UpdateVote(_ context.Context, voteID int64, dir domain.VoteDirection, deleted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[voteID]
	if !ok {
		return fmt.Errorf("%w: vote %d", domain.ErrNotFound, voteID)
	}
	v.record.Direction = dir
	v.record.Deleted = deleted
	return nil
}

func (s *MemoryStore) ListVotes(_ context.Context, target domain.Ref) ([]domain.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.votesLocked(target), nil
}

func (s *MemoryStore) votesLocked(target domain.Ref) []domain.Vote {
	out := []domain.Vote{}
	for _, v := range s.votes {
		if v.record.Target != target || v.record.Deleted {
			continue
		}
		out = append(out, domain.Vote{
			ID:        v.record.ID,
			UserID:    v.record.UserID,
			Username:  s.displayNameLocked(v.record.UserID),
			Direction: v.record.Direction,
			CreatedAt: v.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *MemoryStore) displayNameLocked(userID int64) string {
	return s.users[userID].DisplayName()
}

func (s *MemoryStore) HasActiveComment(_ context.Context, target domain.Ref, userID int64, text string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.comments {
		if c.deleted {
			continue
		}
		if c.comment.PostID == target.ID && c.comment.PostType == target.Type &&
			c.comment.UserID == userID && c.comment.Text == text {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateComment(_ context.Context, c domain.Comment) (domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.nextComment++
	c.ID = s.nextComment
	if strings.TrimSpace(c.Username) == "" {
		c.Username = s.displayNameLocked(c.UserID)
	}
	s.comments[c.ID] = &memComment{comment: c}
	return c, nil
}

func (s *MemoryStore) SoftDeleteComment(_ context.Context, postID, commentID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok || c.deleted || c.comment.PostID != postID || c.comment.UserID != userID {
		return false, nil
	}
	c.deleted = true
	return true, nil
}

func (s *MemoryStore) ListComments(_ context.Context, target domain.Ref) ([]domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commentsLocked(target), nil
}

func (s *MemoryStore) commentsLocked(target domain.Ref) []domain.Comment {
	out := []domain.Comment{}
	for _, c := range s.comments {
		if c.deleted || c.comment.PostID != target.ID || c.comment.PostType != target.Type {
			continue
		}
		cm := c.comment
		cm.Username = s.displayNameLocked(cm.UserID)
		out = append(out, cm)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *MemoryStore) categoryNameLocked(id int64) string {
	for _, c := range s.categories {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}

func (s *MemoryStore) feedItemLocked(c *memContent, now time.Time) domain.FeedItem {
	ref := c.item.Ref()
	votes := s.votesLocked(ref)
	comments := s.commentsLocked(ref)
	item := domain.FeedItem{
		Type:         ref.Type,
		ID:           ref.ID,
		Fields:       c.item.Body.Fields(),
		CategoryID:   c.item.CategoryID,
		CategoryName: s.categoryNameLocked(c.item.CategoryID),
		UserID:       c.item.UserID,
		Username:     s.displayNameLocked(c.item.UserID),
		CreatedAt:    c.item.CreatedAt,
		Tags:         s.tagNamesLocked(ref),
		Comments:     comments,
		Votes:        votes,
	}
	for _, v := range votes {
		switch v.Direction {
		case domain.VoteUp:
			item.UpCount++
		case domain.VoteDown:
			item.DownCount++
		}
	}
	item.PointsCount = domain.Points(votes)
	item.CommentsCount = len(comments)
	item.RankScore = ranking.ScoreAt(item.PointsCount, item.CreatedAt, now)
	return item
}

func (s *MemoryStore) Feed(_ context.Context, filter domain.FeedFilter, now time.Time) (domain.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := []domain.FeedItem{}
	var counts *domain.TypeCounts
	if filter.Unfiltered() {
		counts = &domain.TypeCounts{}
	}
	for _, c := range s.content {
		if c.deleted {
			continue
		}
		if counts != nil {
			counts.Add(c.item.Type(), 1)
		}
		if filter.CategoryID != nil && c.item.CategoryID != *filter.CategoryID {
			continue
		}
		if filter.Type != nil && c.item.Type() != *filter.Type {
			continue
		}
		items = append(items, s.feedItemLocked(c, now))
	}
	ranked := filter.Unfiltered()
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ranked && a.RankScore != b.RankScore {
			return a.RankScore > b.RankScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.ID > b.ID
	})
	if filter.Limit > 0 {
		start := filter.Offset()
		if start < 0 {
			start = 0
		}
		if start > len(items) {
			start = len(items)
		}
		end := start + filter.Limit
		if end > len(items) {
			end = len(items)
		}
		items = items[start:end]
	}
	return domain.Feed{Items: items, Counts: counts}, nil
}

func (s *MemoryStore) FeedItem(_ context.Context, ref domain.Ref, now time.Time) (domain.FeedItem, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.liveContentLocked(ref)
	if !ok {
		return domain.FeedItem{}, false, nil
	}
	return s.feedItemLocked(c, now), true, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*GormStore)(nil)
