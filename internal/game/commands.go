// internal/game/commands.go
package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/showguessr/server/internal/models"
)

var (
	ErrUnknownCommand   = errors.New("unknown message type")
	ErrMalformedMessage = errors.New("malformed message")
)

// Command is an inbound player action. The set of commands is closed: only the
// types in this file implement it.
type Command interface {
	command()
}

type CreateLobby struct {
	LobbyName string                `json:"lobbyName" validate:"required,max=64"`
	Username  string                `json:"username" validate:"required,max=32"`
	Settings  *models.SettingsPatch `json:"settings"`
}

type JoinLobby struct {
	LobbyID  uuid.UUID `json:"lobbyId" validate:"required"`
	Username string    `json:"username" validate:"required,max=32"`
}

type LeaveLobby struct{}

type UpdateSettings struct {
	models.SettingsPatch
}

type StartGame struct{}

// SubmitAnswer carries a guess. LobbyID is optional; when set it must match the
// sender's lobby.
type SubmitAnswer struct {
	LobbyID uuid.UUID `json:"lobbyId"`
	Answer  string    `json:"answer" validate:"max=200"`
}

// SkipRound ends the active round early. Host only.
type SkipRound struct{}

// ReturnToLobby resets a finished lobby for another game. Host only.
type ReturnToLobby struct{}

func (CreateLobby) command()    {}
func (JoinLobby) command()      {}
func (LeaveLobby) command()     {}
func (UpdateSettings) command() {}
func (StartGame) command()      {}
func (SubmitAnswer) command()   {}
func (SkipRound) command()      {}
func (ReturnToLobby) command()  {}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeCommand parses a {"type", "payload"} message and validates its payload.
func DecodeCommand(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var cmd Command
	switch env.Type {
	case "create_lobby":
		cmd = &CreateLobby{}
	case "join_lobby":
		cmd = &JoinLobby{}
	case "leave_lobby":
		cmd = &LeaveLobby{}
	case "update_settings":
		cmd = &UpdateSettings{}
	case "start_game":
		cmd = &StartGame{}
	case "submit_answer":
		cmd = &SubmitAnswer{}
	case "skip_round":
		cmd = &SkipRound{}
	case "return_to_lobby":
		cmd = &ReturnToLobby{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}

	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, cmd); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, env.Type, err)
		}
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, validationError(err)
	}
	return reflect.ValueOf(cmd).Elem().Interface().(Command), nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", ErrMalformedMessage, field)
	case "min", "max":
		return fmt.Errorf("%w: %s must be %s %s", ErrMalformedMessage, field, boundWord(fe.Tag()), fe.Param())
	case "oneof":
		return fmt.Errorf("%w: %s must be one of %s", ErrMalformedMessage, field, fe.Param())
	}
	return fmt.Errorf("%w: invalid %s", ErrMalformedMessage, field)
}

func boundWord(tag string) string {
	if tag == "min" {
		return "at least"
	}
	return "at most"
}
