package protocol

import (
	"github.com/invopop/jsonschema"
)

// SchemaID identifies the wire schema document.
const SchemaID = "https://github.com/muurk/fieldsync/protocol.schema.json"

// Schema returns a JSON Schema describing both message vocabularies. The
// ClientMessage and ServerMessage definitions are oneOf unions whose branches
// are told apart by a const "type" property.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}

	client := []variant{
		{TypeJoin, Join{}},
		{TypeMove, Move{}},
		{TypeChat, Chat{}},
		{TypeChangeNick, ChangeNick{}},
	}
	server := []variant{
		{TypeWelcome, Welcome{}},
		{TypePlayerJoined, PlayerJoined{}},
		{TypePlayerLeft, PlayerLeft{}},
		{TypePlayerMoved, PlayerMoved{}},
		{TypeChatMessage, ChatMessage{}},
		{TypeError, ErrorMessage{}},
	}

	player := r.Reflect(Player{})
	player.Version = ""
	player.ID = ""

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          jsonschema.ID(SchemaID),
		Title:       "fieldsync wire protocol",
		Description: "Messages exchanged as WebSocket text frames after the upgrade",
		Definitions: jsonschema.Definitions{
			"Player":        player,
			"ClientMessage": union(r, "ClientMessage", client),
			"ServerMessage": union(r, "ServerMessage", server),
		},
	}
}

type variant struct {
	tag   string
	value any
}

func union(r *jsonschema.Reflector, title string, variants []variant) *jsonschema.Schema {
	branches := make([]*jsonschema.Schema, 0, len(variants))
	for _, v := range variants {
		branches = append(branches, tagged(r.Reflect(v.value), v.tag))
	}
	return &jsonschema.Schema{
		Title: title,
		OneOf: branches,
	}
}

// tagged rewrites a reflected struct schema so that "type" is the first,
// required, constant property.
func tagged(s *jsonschema.Schema, tag string) *jsonschema.Schema {
	s.Version = ""
	s.ID = ""
	s.Title = tag

	props := jsonschema.NewProperties()
	props.Set("type", &jsonschema.Schema{Type: "string", Const: tag})
	if s.Properties != nil {
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			props.Set(pair.Key, pair.Value)
		}
	}
	s.Properties = props
	s.Required = append([]string{"type"}, s.Required...)
	return s
}
