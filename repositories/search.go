//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_user_index.go -package=mocks
package repositories

import (
	"context"
	"strings"

	"chat-relay/domain"

	"github.com/blugelabs/bluge"
)

type IUserIndex interface {
	Index(userID, username string) error
	Search(ctx context.Context, prefix, excludeUserID string, limit int) ([]domain.User, error)
}

// UserIndex backs username search with a Bluge index. Usernames are
// indexed lowercased as a single keyword term so a prefix query gives
// the case-insensitive prefix match the search endpoint exposes.
type UserIndex struct {
	writer *bluge.Writer
}

func NewUserIndex(writer *bluge.Writer) *UserIndex {
	return &UserIndex{writer: writer}
}

func (u *UserIndex) Index(userID, username string) error {
	doc := bluge.NewDocument(userID).
		AddField(bluge.NewKeywordField("username", strings.ToLower(username)).StoreValue()).
		AddField(bluge.NewStoredOnlyField("display", []byte(username)))
	return u.writer.Update(doc.ID(), doc)
}

// Search returns up to limit users whose username starts with prefix,
// excluding the searching user. An empty prefix matches nobody.
func (u *UserIndex) Search(ctx context.Context, prefix, excludeUserID string, limit int) ([]domain.User, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, nil
	}

	reader, err := u.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	query := bluge.NewPrefixQuery(prefix).SetField("username")
	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit+1, query))
	if err != nil {
		return nil, err
	}

	var users []domain.User
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil || len(users) == limit {
			break
		}

		var user domain.User
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				user.ID = string(value)
			case "display":
				user.Username = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if user.ID == excludeUserID {
			continue
		}
		users = append(users, user)
	}
	return users, nil
}
