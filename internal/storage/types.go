package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// DBUser is a dev server account.
type DBUser struct {
	ID             string `msgpack:"id"`
	Username       string `msgpack:"username"`
	ProfilePicture string `msgpack:"profilePicture"`
	CreatedAt      int64  `msgpack:"createdAt"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

// DBToken is either a dev server auth token (keyed by token) or the token
// a client saved for a user (keyed by user id).
type DBToken struct {
	UserID    string `msgpack:"userId"`
	Token     string `msgpack:"token"`
	ExpiresAt int64  `msgpack:"expiresAt"`
}

func (t *DBToken) Key() []byte {
	return []byte(t.Token)
}

func (t *DBToken) MarshalBinary() (data []byte, err error) {
	type alias DBToken
	return msgpack.Marshal((*alias)(t))
}

func (t *DBToken) UnmarshalBinary(data []byte) error {
	type alias DBToken
	return msgpack.Unmarshal(data, (*alias)(t))
}

type DBConversation struct {
	ID        string `msgpack:"id"`
	User1ID   string `msgpack:"user1Id"`
	User2ID   string `msgpack:"user2Id"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

// DBMessage is keyed by its sequence number inside the conversation bucket.
type DBMessage struct {
	Seq            uint64 `msgpack:"seq"`
	ID             string `msgpack:"id"`
	ConversationID string `msgpack:"conversationId"`
	SenderID       string `msgpack:"senderId"`
	ReceiverID     string `msgpack:"receiverId"`
	Text           string `msgpack:"text"`
	CreatedAt      int64  `msgpack:"createdAt"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, m.Seq)
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBNotification struct {
	ID           string `msgpack:"id"`
	Actor        string `msgpack:"actor"`
	TargetUserID string `msgpack:"targetUserId"`
	Title        string `msgpack:"title"`
	Content      string `msgpack:"content"`
	Kind         string `msgpack:"kind"`
	Data         []byte `msgpack:"data"`
	Read         bool   `msgpack:"read"`
	CreatedAt    int64  `msgpack:"createdAt"`
}

func (n *DBNotification) Key() []byte {
	return []byte(n.ID)
}

func (n *DBNotification) MarshalBinary() (data []byte, err error) {
	type alias DBNotification
	return msgpack.Marshal((*alias)(n))
}

func (n *DBNotification) UnmarshalBinary(data []byte) error {
	type alias DBNotification
	return msgpack.Unmarshal(data, (*alias)(n))
}

type DBPost struct {
	ID        string      `msgpack:"id"`
	AuthorID  string      `msgpack:"authorId"`
	Text      string      `msgpack:"text"`
	LikedBy   []string    `msgpack:"likedBy"`
	SharedBy  []string    `msgpack:"sharedBy"`
	Comments  []DBComment `msgpack:"comments"`
	CreatedAt int64       `msgpack:"createdAt"`
}

type DBComment struct {
	ID        string `msgpack:"id"`
	AuthorID  string `msgpack:"authorId"`
	Text      string `msgpack:"text"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (p *DBPost) Key() []byte {
	return []byte(p.ID)
}

func (p *DBPost) MarshalBinary() (data []byte, err error) {
	type alias DBPost
	return msgpack.Marshal((*alias)(p))
}

func (p *DBPost) UnmarshalBinary(data []byte) error {
	type alias DBPost
	return msgpack.Unmarshal(data, (*alias)(p))
}
