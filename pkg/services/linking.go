package services

import (
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// ErrAlreadyLinked is returned when linking a player or Discord account that
// already has a link.
var ErrAlreadyLinked = errors.New("already linked")

// PendingLink is a link request of a player waiting for the Discord side.
type PendingLink struct {
	PlayerID  uuid.UUID `json:"player_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// LinkData is a player linked to a Discord account.
type LinkData struct {
	DiscordID string    `json:"discord_id"`
	Name      string    `json:"name"`
	PlayerID  uuid.UUID `json:"player_id"`
}

// LinkingService stores links between players and Discord accounts.
type LinkingService interface {
	Service
	AddPending(link PendingLink) error
	IsPending(playerID uuid.UUID) (bool, error)
	RemovePending(playerID uuid.UUID) error
	// CompleteLink turns the pending link of playerID into a link with
	// discordID.
	CompleteLink(playerID uuid.UUID, discordID string) (LinkData, error)
	IsLinked(playerID uuid.UUID) (bool, error)
	ByPlayer(playerID uuid.UUID) (LinkData, error)
	ByDiscord(discordID string) (LinkData, error)
	Unlink(playerID uuid.UUID) error
	Links() ([]LinkData, error)
	Pending() ([]PendingLink, error)
}

// BoltLinkingService is a LinkingService backed by a bbolt file.
type BoltLinkingService interface {
	LinkingService
	io.Closer
}

type boltLinkingService struct {
	db  *bolt.DB
	log *zap.Logger
	now func() time.Time
}

var (
	pendingBucket = []byte("pending")
	linksBucket   = []byte("links")
	// discordBucket indexes player ids by Discord id.
	discordBucket = []byte("discord")
)

// NewBoltLinkingService opens (creating when missing) the link database.
func NewBoltLinkingService(log *zap.Logger, databaseFile string) (BoltLinkingService, error) {
	db, err := bolt.Open(databaseFile, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open DB file: %s", databaseFile)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{pendingBucket, linksBucket, discordBucket} {
			_, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return errors.Wrapf(err, "unable to create %s bucket", bucket)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}

	return &boltLinkingService{
		db:  db,
		log: log,
		now: time.Now,
	}, nil
}

func (s *boltLinkingService) ID() string {
	return "bbolt_linking"
}

func (s *boltLinkingService) Close() error {
	return s.db.Close()
}

func (s *boltLinkingService) AddPending(link PendingLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = s.now()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(linksBucket).Get(link.PlayerID.Bytes()) != nil {
			return errors.Wrap(ErrAlreadyLinked, link.Name)
		}
		data, err := json.Marshal(&link)
		if err != nil {
			return errors.Wrapf(err, "unable to marshal pending link: %+v", link)
		}
		return tx.Bucket(pendingBucket).Put(link.PlayerID.Bytes(), data)
	})
	if err != nil {
		return errors.Wrap(err, "unable to add pending link")
	}
	return nil
}

func (s *boltLinkingService) IsPending(playerID uuid.UUID) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(pendingBucket).Get(playerID.Bytes()) != nil
		return nil
	})
	return found, errors.WithStack(err)
}

func (s *boltLinkingService) RemovePending(playerID uuid.UUID) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pendingBucket)
		if b.Get(playerID.Bytes()) == nil {
			return ErrNotFound
		}
		return b.Delete(playerID.Bytes())
	})
	if err != nil {
		return errors.Wrapf(err, "unable to remove pending link of %s", playerID)
	}
	return nil
}

func (s *boltLinkingService) CompleteLink(playerID uuid.UUID, discordID string) (LinkData, error) {
	var link LinkData
	err := s.db.Update(func(tx *bolt.Tx) error {
		pending := tx.Bucket(pendingBucket)
		data := pending.Get(playerID.Bytes())
		if data == nil {
			return ErrNotFound
		}
		var p PendingLink
		if err := json.Unmarshal(data, &p); err != nil {
			return errors.Wrapf(err, "error unmarshaling pending link: %s", data)
		}

		index := tx.Bucket(discordBucket)
		if index.Get([]byte(discordID)) != nil {
			return errors.Wrapf(ErrAlreadyLinked, "discord account %s", discordID)
		}

		link = LinkData{
			DiscordID: discordID,
			Name:      p.Name,
			PlayerID:  p.PlayerID,
		}
		out, err := json.Marshal(&link)
		if err != nil {
			return errors.Wrapf(err, "unable to marshal link: %+v", link)
		}
		if err := tx.Bucket(linksBucket).Put(playerID.Bytes(), out); err != nil {
			return errors.Wrap(err, "error in bucket.Put()")
		}
		if err := index.Put([]byte(discordID), playerID.Bytes()); err != nil {
			return errors.Wrap(err, "error in bucket.Put()")
		}
		return pending.Delete(playerID.Bytes())
	})
	if err != nil {
		return LinkData{}, errors.Wrapf(err, "unable to complete link of %s", playerID)
	}
	s.log.Info("Linked account",
		zap.String("player", link.Name),
		zap.Stringer("player_id", link.PlayerID),
		zap.String("discord_id", link.DiscordID),
	)
	return link, nil
}

func (s *boltLinkingService) IsLinked(playerID uuid.UUID) (bool, error) {
	_, err := s.ByPlayer(playerID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *boltLinkingService) ByPlayer(playerID uuid.UUID) (LinkData, error) {
	var link LinkData
	err := s.db.View(func(tx *bolt.Tx) error {
		return getLink(tx, playerID.Bytes(), &link)
	})
	if err != nil {
		return LinkData{}, errors.Wrapf(err, "unable to get link of %s", playerID)
	}
	return link, nil
}

func (s *boltLinkingService) ByDiscord(discordID string) (LinkData, error) {
	var link LinkData
	err := s.db.View(func(tx *bolt.Tx) error {
		playerID := tx.Bucket(discordBucket).Get([]byte(discordID))
		if playerID == nil {
			return ErrNotFound
		}
		return getLink(tx, playerID, &link)
	})
	if err != nil {
		return LinkData{}, errors.Wrapf(err, "unable to get link of discord account %s", discordID)
	}
	return link, nil
}

func getLink(tx *bolt.Tx, key []byte, link *LinkData) error {
	data := tx.Bucket(linksBucket).Get(key)
	if data == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, link); err != nil {
		return errors.Wrapf(err, "error unmarshaling link: %s", data)
	}
	return nil
}

func (s *boltLinkingService) Unlink(playerID uuid.UUID) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		var link LinkData
		if err := getLink(tx, playerID.Bytes(), &link); err != nil {
			return err
		}
		if err := tx.Bucket(discordBucket).Delete([]byte(link.DiscordID)); err != nil {
			return errors.Wrap(err, "error in bucket.Delete()")
		}
		return tx.Bucket(linksBucket).Delete(playerID.Bytes())
	})
	if err != nil {
		return errors.Wrapf(err, "unable to unlink %s", playerID)
	}
	return nil
}

// Links returns every link sorted by player name.
func (s *boltLinkingService) Links() ([]LinkData, error) {
	var out []LinkData
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(linksBucket).ForEach(func(k, v []byte) error {
			var link LinkData
			if err := json.Unmarshal(v, &link); err != nil {
				return errors.Wrap(err, "unable to unmarshal link")
			}
			out = append(out, link)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "error reading links")
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Pending returns every pending link, oldest first.
func (s *boltLinkingService) Pending() ([]PendingLink, error) {
	var out []PendingLink
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).ForEach(func(k, v []byte) error {
			var link PendingLink
			if err := json.Unmarshal(v, &link); err != nil {
				return errors.Wrap(err, "unable to unmarshal pending link")
			}
			out = append(out, link)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "error reading pending links")
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
