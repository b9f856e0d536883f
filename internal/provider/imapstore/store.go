package imapstore

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/brandon/storemerge/internal/provider"
	"github.com/brandon/storemerge/pkg/types"
)

// mailTypeTag is what every IMAP message reports as its type tag.
const mailTypeTag = "IPM.Note"

// Store is one IMAP account. The connection is dialed lazily on first use.
type Store struct {
	session   *Session
	cfg       AccountConfig
	logger    *logrus.Logger
	client    *client.Client
	connected bool
	delimiter string
}

// connect establishes the connection if it is not already up.
func (s *Store) connect() error {
	if s.connected && s.client != nil {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	cl, err := client.DialTLS(addr, &tls.Config{
		ServerName: s.cfg.Host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	if err := cl.Login(s.cfg.Username, s.cfg.Password); err != nil {
		cl.Logout() //nolint:errcheck
		return fmt.Errorf("failed to login to IMAP server: %w", err)
	}
	s.client = cl
	s.connected = true
	s.logger.WithField("account", s.cfg.Name).Info("Connected to IMAP server")
	return nil
}

// ensureSelected selects the mailbox and returns its status. Always
// re-selected: message counts shift under expunges, so a cached status
// would go stale mid-run.
func (s *Store) ensureSelected(mailbox string) (*imap.MailboxStatus, error) {
	if err := s.connect(); err != nil {
		return nil, err
	}
	mbox, err := s.client.Select(mailbox, false)
	if err != nil {
		return nil, fmt.Errorf("failed to select mailbox %q: %w", mailbox, err)
	}
	return mbox, nil
}

// list runs a LIST against the account and caches the hierarchy delimiter.
func (s *Store) list(pattern string) ([]*imap.MailboxInfo, error) {
	if err := s.connect(); err != nil {
		return nil, err
	}
	ch := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.List("", pattern, ch)
	}()
	var infos []*imap.MailboxInfo
	for m := range ch {
		if s.delimiter == "" {
			s.delimiter = m.Delimiter
		}
		infos = append(infos, m)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	return infos, nil
}

// ID implements provider.Store. Account names are stable across runs.
func (s *Store) ID() string { return "imap:" + s.cfg.Name }

// Name implements provider.Store.
func (s *Store) Name() string { return s.cfg.Name }

// Root implements provider.Store. The root is virtual: it has no items of
// its own, only the account's top-level mailboxes as children.
func (s *Store) Root() (provider.Container, error) {
	if err := s.connect(); err != nil {
		return nil, err
	}
	return &Container{store: s, mailbox: "", name: s.cfg.Name}, nil
}

// DefaultContainer implements provider.Store. Only the mail category has a
// store-scoped default (INBOX); the engine falls back for everything else.
func (s *Store) DefaultContainer(c types.Category) (provider.Container, error) {
	if c != types.CategoryMail && c != types.CategoryOther {
		return nil, fmt.Errorf("%w: %s", provider.ErrNoDefaultContainer, c)
	}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return &Container{store: s, mailbox: "INBOX", name: "INBOX"}, nil
}

// Close implements provider.Store.
func (s *Store) Close() error {
	if s.client != nil {
		err := s.client.Logout()
		s.client = nil
		s.connected = false
		return err
	}
	return nil
}

// Container is one mailbox; the empty mailbox name is the virtual root.
type Container struct {
	store   *Store
	mailbox string
	name    string
}

// Key implements provider.Container. Mailbox names are the durable entry
// ids of this provider.
func (c *Container) Key() types.ContainerKey {
	return types.ContainerKey{StoreID: c.store.ID(), EntryID: c.mailbox}
}

// Name implements provider.Container.
func (c *Container) Name() string { return c.name }

// ItemCount implements provider.Container.
func (c *Container) ItemCount() (int, error) {
	if c.mailbox == "" {
		return 0, nil
	}
	mbox, err := c.store.ensureSelected(c.mailbox)
	if err != nil {
		return 0, err
	}
	return int(mbox.Messages), nil
}

// ItemAt implements provider.Container. Positions are IMAP sequence
// numbers, which shift down as messages are expunged; the engine's
// descending iteration tolerates exactly that.
func (c *Container) ItemAt(pos int) (provider.Item, error) {
	if _, err := c.store.ensureSelected(c.mailbox); err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(pos))
	fetch := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchRFC822Size}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.store.client.Fetch(seqset, fetch, ch)
	}()
	var msg *imap.Message
	for m := range ch {
		msg = m
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", pos, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("no message at position %d", pos)
	}

	item := &Item{store: c.store, mailbox: c.mailbox, seq: uint32(pos), size: int64(msg.Size)}
	if msg.Envelope != nil {
		item.subject = msg.Envelope.Subject
		item.sentOn = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			item.sender = msg.Envelope.From[0].Address()
		}
	}
	if item.sentOn.IsZero() {
		item.sentOn = msg.InternalDate
	}
	return item, nil
}

// ChildCount implements provider.Container.
func (c *Container) ChildCount() (int, error) {
	children, err := c.children()
	if err != nil {
		return 0, err
	}
	return len(children), nil
}

// ChildKeyAt implements provider.Container.
func (c *Container) ChildKeyAt(pos int) (types.ContainerKey, error) {
	children, err := c.children()
	if err != nil {
		return types.ContainerKey{}, err
	}
	if pos < 1 || pos > len(children) {
		return types.ContainerKey{}, fmt.Errorf("position %d out of range", pos)
	}
	return types.ContainerKey{StoreID: c.store.ID(), EntryID: children[pos-1].Name}, nil
}

// children lists the mailboxes directly below this one.
func (c *Container) children() ([]*imap.MailboxInfo, error) {
	pattern := "%"
	if c.mailbox != "" {
		delim := c.store.delimiter
		if delim == "" {
			delim = "/"
		}
		pattern = c.mailbox + delim + "%"
	}
	return c.store.list(pattern)
}

// Resolve implements provider.Container.
func (c *Container) Resolve(key types.ContainerKey) (provider.Container, error) {
	name := key.EntryID
	display := name
	if delim := c.store.delimiter; delim != "" {
		parts := strings.Split(name, delim)
		display = parts[len(parts)-1]
	}
	return &Container{store: c.store, mailbox: name, name: display}, nil
}

// Item is one message identified by its sequence number at fetch time.
type Item struct {
	store   *Store
	mailbox string
	seq     uint32

	subject string
	sender  string
	sentOn  time.Time
	size    int64

	bodyFetched bool
	bodyText    string
}

// TypeTag implements provider.Item.
func (it *Item) TypeTag() string { return mailTypeTag }

// Subject implements provider.Item.
func (it *Item) Subject() string { return it.subject }

// Body implements provider.Item. Fetched on demand and parsed with enmime;
// any failure yields an empty body rather than an error.
func (it *Item) Body() string {
	if it.bodyFetched {
		return it.bodyText
	}
	it.bodyFetched = true
	raw, err := it.fetchRaw()
	if err != nil {
		it.store.logger.WithError(err).Debug("Failed to fetch message body")
		return ""
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		it.bodyText = string(raw)
		return it.bodyText
	}
	it.bodyText = env.Text
	return it.bodyText
}

// Start implements provider.Item.
func (it *Item) Start() time.Time { return time.Time{} }

// End implements provider.Item.
func (it *Item) End() time.Time { return time.Time{} }

// Due implements provider.Item.
func (it *Item) Due() time.Time { return time.Time{} }

// SentOn implements provider.Item.
func (it *Item) SentOn() time.Time { return it.sentOn }

// Location implements provider.Item.
func (it *Item) Location() string { return "" }

// FullName implements provider.Item.
func (it *Item) FullName() string { return "" }

// Company implements provider.Item.
func (it *Item) Company() string { return "" }

// Email implements provider.Item.
func (it *Item) Email(n int) string { return "" }

// SenderAddress implements provider.Item.
func (it *Item) SenderAddress() string { return it.sender }

// Size implements provider.Item.
func (it *Item) Size() int64 { return it.size }

// PercentComplete implements provider.Item.
func (it *Item) PercentComplete() int { return 0 }

// Description implements provider.Item.
func (it *Item) Description() string {
	if it.subject != "" {
		return it.subject
	}
	return fmt.Sprintf("%s #%d", it.mailbox, it.seq)
}

// fetchRaw pulls the full RFC822 content of the message.
func (it *Item) fetchRaw() ([]byte, error) {
	if _, err := it.store.ensureSelected(it.mailbox); err != nil {
		return nil, err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(it.seq)
	section := &imap.BodySectionName{}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- it.store.client.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, ch)
	}()
	var msg *imap.Message
	for m := range ch {
		msg = m
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message content: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("message %d not found", it.seq)
	}
	literal := msg.GetBody(section)
	if literal == nil {
		return nil, fmt.Errorf("no body section in response")
	}
	return io.ReadAll(literal)
}

// MoveTo implements provider.Item. Within one account this is COPY plus
// delete-and-expunge; across accounts the raw message is appended to the
// destination before the source copy is removed.
func (it *Item) MoveTo(dest provider.Container) error {
	target, ok := dest.(*Container)
	if !ok {
		return fmt.Errorf("%w: destination not an IMAP container", provider.ErrMoveFailed)
	}

	if target.store == it.store {
		if _, err := it.store.ensureSelected(it.mailbox); err != nil {
			return fmt.Errorf("%w: %v", provider.ErrMoveFailed, err)
		}
		seqset := new(imap.SeqSet)
		seqset.AddNum(it.seq)
		if err := it.store.client.Copy(seqset, target.mailbox); err != nil {
			return fmt.Errorf("%w: copy: %v", provider.ErrMoveFailed, err)
		}
		return it.deleteSource()
	}

	raw, err := it.fetchRaw()
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrMoveFailed, err)
	}
	if err := target.store.connect(); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrMoveFailed, err)
	}
	date := it.sentOn
	if date.IsZero() {
		date = time.Now()
	}
	if err := target.store.client.Append(target.mailbox, nil, date, bytes.NewBuffer(raw)); err != nil {
		return fmt.Errorf("%w: append: %v", provider.ErrMoveFailed, err)
	}
	return it.deleteSource()
}

// deleteSource flags the source message deleted and expunges it. Descending
// traversal means the expunge only renumbers messages already visited.
func (it *Item) deleteSource() error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(it.seq)
	flagsOp := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := it.store.client.Store(seqset, flagsOp, flags, nil); err != nil {
		return fmt.Errorf("%w: flag deleted: %v", provider.ErrMoveFailed, err)
	}
	if err := it.store.client.Expunge(nil); err != nil {
		return fmt.Errorf("%w: expunge: %v", provider.ErrMoveFailed, err)
	}
	return nil
}
