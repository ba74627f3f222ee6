package watch

// Kind classifies a change notification.
type Kind uint8

const (
	Created Kind = iota + 1
	Deleted
	MovedIn
	MovedOut
	Written
	SelfDeleted

	// Ignored means the kernel dropped the watch; the id may be reused.
	Ignored
	// Overflow means the kernel queue overflowed and events were lost.
	Overflow
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "CREATE"
	case Deleted:
		return "DELETE"
	case MovedIn:
		return "MOVED_IN"
	case MovedOut:
		return "MOVED_OUT"
	case Written:
		return "WRITE"
	case SelfDeleted:
		return "DELETE_SELF"
	case Ignored:
		return "IGNORED"
	case Overflow:
		return "OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// Event is a single decoded change notification. Name is the entry inside
// the directory identified by WatchID and is empty for events about the
// watched directory itself.
type Event struct {
	WatchID int
	Kind    Kind
	IsDir   bool
	Name    string
}

func (e Event) HasName() bool {
	return e.Name != ""
}
