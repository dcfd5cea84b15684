package protocol

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Request verbs.
const (
	VerbRegister = "REGISTER"
	VerbLogin    = "LOGIN"
	VerbLogout   = "LOGOUT"
	VerbDelete   = "DELETE"
	VerbList     = "LIST"
	VerbSendMsg  = "SEND_MSG"
	VerbPing     = "PING"
)

// Field limits, in runes.
const (
	MaxNickLen = 50
	MaxNameLen = 100
	MaxTextLen = 1024
)

var (
	ErrBadFormat      = errors.New("bad request format")
	ErrUnknownCommand = errors.New("unknown command")
)

var validate = validator.New()

func init() {
	_ = validate.RegisterValidation("nick", validateNick)
	_ = validate.RegisterValidation("notblank", validateNotBlank)
}

// validateNick rejects nicks that are blank, carry surrounding whitespace or
// contain unprintable runes.
func validateNick(fl validator.FieldLevel) bool {
	nick := fl.Field().String()
	if nick == "" || strings.TrimSpace(nick) != nick {
		return false
	}
	for _, r := range nick {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Request is a parsed client command.
type Request interface {
	Verb() string
}

type RegisterRequest struct {
	Nick string `validate:"required,max=50,nick"`
	Name string `validate:"required,max=100,notblank"`
}

type LoginRequest struct {
	Nick string `validate:"required,max=50,nick"`
}

type LogoutRequest struct {
	Nick string `validate:"required,max=50,nick"`
}

type DeleteRequest struct {
	Nick string `validate:"required,max=50,nick"`
}

type ListRequest struct{}

type SendRequest struct {
	To   string `validate:"required,max=50,nick"`
	Text string `validate:"required,max=1024"`
}

type PingRequest struct{}

func (RegisterRequest) Verb() string { return VerbRegister }
func (LoginRequest) Verb() string    { return VerbLogin }
func (LogoutRequest) Verb() string   { return VerbLogout }
func (DeleteRequest) Verb() string   { return VerbDelete }
func (ListRequest) Verb() string     { return VerbList }
func (SendRequest) Verb() string     { return VerbSendMsg }
func (PingRequest) Verb() string     { return VerbPing }

// ParseRequest decodes one frame into a typed request. It fails with
// ErrUnknownCommand for an unrecognized verb and with ErrBadFormat when the
// field count is wrong, a field is empty or too long, or a nick is blank.
func ParseRequest(line string) (Request, error) {
	fields := SplitFields(line)
	verb := strings.TrimSpace(fields[0])
	args := fields[1:]

	var req Request
	switch verb {
	case VerbRegister:
		if len(args) != 2 {
			return nil, ErrBadFormat
		}
		req = RegisterRequest{Nick: args[0], Name: args[1]}
	case VerbLogin:
		if len(args) != 1 {
			return nil, ErrBadFormat
		}
		req = LoginRequest{Nick: args[0]}
	case VerbLogout:
		if len(args) != 1 {
			return nil, ErrBadFormat
		}
		req = LogoutRequest{Nick: args[0]}
	case VerbDelete:
		if len(args) != 1 {
			return nil, ErrBadFormat
		}
		req = DeleteRequest{Nick: args[0]}
	case VerbList:
		if len(args) != 0 {
			return nil, ErrBadFormat
		}
		return ListRequest{}, nil
	case VerbSendMsg:
		if len(args) != 2 {
			return nil, ErrBadFormat
		}
		req = SendRequest{To: args[0], Text: args[1]}
	case VerbPing:
		if len(args) != 0 {
			return nil, ErrBadFormat
		}
		return PingRequest{}, nil
	default:
		return nil, ErrUnknownCommand
	}

	if err := validate.Struct(req); err != nil {
		return nil, ErrBadFormat
	}
	return req, nil
}

// FormatRequest renders a request as a frame. It is the inverse of
// ParseRequest and is used by the client library.
func FormatRequest(req Request) string {
	switch r := req.(type) {
	case RegisterRequest:
		return FormatPacket(VerbRegister, r.Nick, r.Name)
	case LoginRequest:
		return FormatPacket(VerbLogin, r.Nick)
	case LogoutRequest:
		return FormatPacket(VerbLogout, r.Nick)
	case DeleteRequest:
		return FormatPacket(VerbDelete, r.Nick)
	case SendRequest:
		return FormatPacket(VerbSendMsg, r.To, r.Text)
	default:
		return FormatPacket(req.Verb())
	}
}
