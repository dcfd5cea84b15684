package protocol

import (
	"strconv"
	"time"

	"nickchat/models"
)

// Response and push tags.
const (
	TypeOK      = "OK"
	TypeError   = "ERROR"
	TypeUsers   = "USERS"
	TypePong    = "PONG"
	TypeDeliver = "DELIVER_MSG"
)

// Error codes carried by ERROR frames.
const (
	CodeNickTaken      = "NICK_TAKEN"
	CodeLimit          = "LIMIT"
	CodeNoSuchUser     = "NO_SUCH_USER"
	CodeAlreadyOnline  = "ALREADY_ONLINE"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeBadState       = "BAD_STATE"
	CodeBadFormat      = "BAD_FORMAT"
	CodeUnknownCommand = "UNKNOWN_COMMAND"
	CodeInternal       = "INTERNAL"
)

func FormatOK(fields ...string) string {
	return FormatPacket(TypeOK, fields...)
}

func FormatError(code string) string {
	return FormatPacket(TypeError, code)
}

// FormatUsers renders a listing as flat nick|online|name triples.
func FormatUsers(users []models.UserInfo) string {
	fields := make([]string, 0, len(users)*3)
	for _, u := range users {
		online := "0"
		if u.Online {
			online = "1"
		}
		fields = append(fields, u.Nick, online, u.Name)
	}
	return FormatPacket(TypeUsers, fields...)
}

// FormatDelivery renders the push frame for a delivered message.
func FormatDelivery(msg models.DeliveryMessage) string {
	return FormatPacket(TypeDeliver, msg.From, msg.Text, strconv.FormatInt(msg.Timestamp.Unix(), 10))
}

// ParseUsers decodes the fields of a USERS frame, without the tag.
func ParseUsers(fields []string) ([]models.UserInfo, error) {
	if len(fields)%3 != 0 {
		return nil, ErrBadFormat
	}
	users := make([]models.UserInfo, 0, len(fields)/3)
	for i := 0; i < len(fields); i += 3 {
		users = append(users, models.UserInfo{
			Nick:   fields[i],
			Online: fields[i+1] == "1",
			Name:   fields[i+2],
		})
	}
	return users, nil
}

// ParseDelivery decodes the fields of a DELIVER_MSG frame, without the tag.
// The recipient is not part of the frame and is left empty.
func ParseDelivery(fields []string) (models.DeliveryMessage, error) {
	if len(fields) != 3 {
		return models.DeliveryMessage{}, ErrBadFormat
	}
	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return models.DeliveryMessage{}, ErrBadFormat
	}
	return models.DeliveryMessage{
		From:      fields[0],
		Text:      fields[1],
		Timestamp: time.Unix(ts, 0).UTC(),
	}, nil
}
