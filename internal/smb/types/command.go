package types

import "fmt"

// SMB1ProtocolID is the SMB1 protocol identifier (little-endian: 0xFF 'S' 'M' 'B')
const SMB1ProtocolID uint32 = 0x424D53FF

// SMB2ProtocolID is the SMB2 protocol identifier (little-endian: 0xFE 'S' 'M' 'B')
const SMB2ProtocolID uint32 = 0x424D53FE

// Command identifies an SMB2 operation [MS-SMB2] 2.2.1.
type Command uint16

const (
	CommandNegotiate      Command = 0x0000
	CommandSessionSetup   Command = 0x0001
	CommandLogoff         Command = 0x0002
	CommandTreeConnect    Command = 0x0003
	CommandTreeDisconnect Command = 0x0004
	CommandCreate         Command = 0x0005
	CommandClose          Command = 0x0006
	CommandFlush          Command = 0x0007
	CommandRead           Command = 0x0008
	CommandWrite          Command = 0x0009
	CommandLock           Command = 0x000A
	CommandIoctl          Command = 0x000B
	CommandCancel         Command = 0x000C
	CommandEcho           Command = 0x000D
	CommandQueryDirectory Command = 0x000E
	CommandChangeNotify   Command = 0x000F
	CommandQueryInfo      Command = 0x0010
	CommandSetInfo        Command = 0x0011
	CommandOplockBreak    Command = 0x0012
)

// String returns the protocol name of the command.
func (c Command) String() string {
	switch c {
	case CommandNegotiate:
		return "NEGOTIATE"
	case CommandSessionSetup:
		return "SESSION_SETUP"
	case CommandLogoff:
		return "LOGOFF"
	case CommandTreeConnect:
		return "TREE_CONNECT"
	case CommandTreeDisconnect:
		return "TREE_DISCONNECT"
	case CommandCreate:
		return "CREATE"
	case CommandClose:
		return "CLOSE"
	case CommandFlush:
		return "FLUSH"
	case CommandRead:
		return "READ"
	case CommandWrite:
		return "WRITE"
	case CommandLock:
		return "LOCK"
	case CommandIoctl:
		return "IOCTL"
	case CommandCancel:
		return "CANCEL"
	case CommandEcho:
		return "ECHO"
	case CommandQueryDirectory:
		return "QUERY_DIRECTORY"
	case CommandChangeNotify:
		return "CHANGE_NOTIFY"
	case CommandQueryInfo:
		return "QUERY_INFO"
	case CommandSetInfo:
		return "SET_INFO"
	case CommandOplockBreak:
		return "OPLOCK_BREAK"
	default:
		return fmt.Sprintf("COMMAND_0x%04X", uint16(c))
	}
}

// HeaderFlags is the SMB2 header Flags bitmask [MS-SMB2] 2.2.1.1.
type HeaderFlags uint32

const (
	FlagResponse        HeaderFlags = 0x00000001
	FlagAsync           HeaderFlags = 0x00000002
	FlagRelated         HeaderFlags = 0x00000004
	FlagSigned          HeaderFlags = 0x00000008
	FlagPriorityMask    HeaderFlags = 0x00000070
	FlagDFSOperations   HeaderFlags = 0x10000000
	FlagReplayOperation HeaderFlags = 0x20000000
)

// IsResponse reports whether the server-to-redirector bit is set.
func (f HeaderFlags) IsResponse() bool { return f&FlagResponse != 0 }

// IsAsync reports whether the message uses an AsyncId.
func (f HeaderFlags) IsAsync() bool { return f&FlagAsync != 0 }

// IsRelated reports whether the command is a related compound operation.
func (f HeaderFlags) IsRelated() bool { return f&FlagRelated != 0 }

// IsSigned reports whether the message carries a signature.
func (f HeaderFlags) IsSigned() bool { return f&FlagSigned != 0 }

// IsReplay reports whether the request is flagged as a replayed operation.
func (f HeaderFlags) IsReplay() bool { return f&FlagReplayOperation != 0 }
