package keys

// Collection tags, grounded on the per-collection field enums of
// crates/types/src/field.rs and the collection list of spec.md §3.
const (
	CollectionMailbox                   Collection = iota
	CollectionEmail
	CollectionThread
	CollectionAddressBook
	CollectionContactCard
	CollectionCalendar
	CollectionCalendarEvent
	CollectionFileNode
	CollectionSieveScript
	CollectionPushSubscription
	CollectionIdentity
	CollectionPrincipal
	CollectionCalendarEventNotification
	CollectionShareNotification
)

// SyncCollection tags, grounded on spec.md §3 ("a parallel SyncCollection
// tag groups item-kinds with their container-kinds"). Email items and
// Mailbox containers share SyncEmail; calendar events and calendars
// share SyncCalendar, etc.
const (
	SyncEmail SyncCollection = iota
	SyncAddressBook
	SyncCalendar
	SyncFileNode
	SyncSieveScript
	SyncPushSubscription
	SyncIdentity
	SyncPrincipal
	SyncShareNotification
)

// Field tags per collection, transcribed from crates/types/src/field.rs.
// Mailbox, contact, calendar and Sieve fields use ArchiveField (50) for the
// archived payload; the email, submission and principal tables use 0.
const (
	FieldMailboxUIDCounter Field = 0
	FieldMailboxArchive    Field = ArchiveField
)

const (
	FieldEmailArchive       Field = 0
	FieldEmailMetadata      Field = 1
	FieldEmailSize          Field = 2
	FieldEmailSubject       Field = 3
	FieldEmailReferences    Field = 4
	FieldEmailMailboxIDs    Field = 5
	FieldEmailReceivedAt    Field = 6
	FieldEmailSentAt        Field = 7
	FieldEmailHasAttachment Field = 8
	FieldEmailFrom          Field = 9
	FieldEmailTo            Field = 10
	FieldEmailCc            Field = 11
	FieldEmailBcc           Field = 12
)

const (
	FieldContactUID     Field = 0
	FieldContactEmail   Field = 1
	FieldContactCreated Field = 2
	FieldContactUpdated Field = 3
	FieldContactText    Field = 4
	FieldContactArchive Field = ArchiveField
)

const (
	FieldCalendarUID     Field = 0
	FieldCalendarText    Field = 1
	FieldCalendarCreated Field = 2
	FieldCalendarUpdated Field = 3
	FieldCalendarStart   Field = 4
	FieldCalendarEventID Field = 5
	FieldCalendarArchive Field = ArchiveField
)

const (
	FieldSieveName    Field = 0
	FieldSieveIDs     Field = 1
	FieldSieveArchive Field = ArchiveField
)

const (
	FieldSubmissionArchive    Field = 0
	FieldSubmissionUndoStatus Field = 1
	FieldSubmissionEmailID    Field = 2
	FieldSubmissionThreadID   Field = 3
	FieldSubmissionIdentity   Field = 4
	FieldSubmissionSendAt     Field = 5
)

const (
	FieldPrincipalArchive              Field = 0
	FieldPrincipalEncryptionKeys       Field = 1
	FieldPrincipalParticipantIdents    Field = 2
	FieldPrincipalDefaultCalendarID    Field = 3
	FieldPrincipalDefaultAddressBookID Field = 4
	FieldPrincipalActiveScriptID       Field = 5
	FieldPrincipalPushSubscriptions    Field = 6
)

// FieldQuotaSize is the index field used by the quota index value to
// track the byte-size contribution of a live document (spec.md §4.5).
const FieldQuotaSize Field = 100

// FieldACL is the field used by ACL bitmap index entries.
const FieldACL Field = 101
