package botdispatch

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type JSONInspectorSuite struct {
	suite.Suite
	inspector Inspector
}

func (s *JSONInspectorSuite) SetupTest() {
	s.inspector = JSONInspector()
}

func TestJSONInspectorSuite(t *testing.T) {
	suite.Run(t, new(JSONInspectorSuite))
}

func (s *JSONInspectorSuite) TestReturnsViewForValidJSON() {
	view, err := s.inspector.Inspect([]byte(`{"update_id": 1}`))

	s.Require().NoError(err)
	s.Assert().NotNil(view)
}

func (s *JSONInspectorSuite) TestReturnsErrorForInvalidJSON() {
	_, err := s.inspector.Inspect([]byte(`{not valid}`))

	s.Assert().ErrorIs(err, ErrInvalidJSON)
}

func (s *JSONInspectorSuite) TestReturnsErrorForEmptyInput() {
	_, err := s.inspector.Inspect([]byte{})

	s.Assert().ErrorIs(err, ErrInvalidJSON)
}

type JSONViewSuite struct {
	suite.Suite
	view View
}

func (s *JSONViewSuite) SetupTest() {
	raw := []byte(`{
		"update_id": 7,
		"message": {
			"message_id": 3,
			"text": "/start",
			"chat": {"id": -100, "type": "group"},
			"from": {"id": 5, "is_bot": false},
			"entities": [
				{"type": "bot_command", "offset": 0, "length": 6},
				{"type": "url", "offset": 7, "length": 3}
			]
		}
	}`)

	var err error
	s.view, err = JSONInspector().Inspect(raw)
	s.Require().NoError(err)
}

func TestJSONViewSuite(t *testing.T) {
	suite.Run(t, new(JSONViewSuite))
}

func (s *JSONViewSuite) TestHasField() {
	tests := map[string]struct {
		path   string
		exists bool
	}{
		"top level":      {"update_id", true},
		"object":         {"message", true},
		"nested":         {"message.chat.id", true},
		"missing":        {"callback_query", false},
		"nested missing": {"message.chat.title", false},
	}

	for name, tt := range tests {
		s.Run(name, func() {
			s.Assert().Equal(tt.exists, s.view.HasField(tt.path))
		})
	}
}

func (s *JSONViewSuite) TestGetString() {
	val, ok := s.view.GetString("message.text")
	s.Require().True(ok)
	s.Assert().Equal("/start", val)

	_, ok = s.view.GetString("message.message_id")
	s.Assert().False(ok, "number is not a string")

	_, ok = s.view.GetString("message.caption")
	s.Assert().False(ok)
}

func (s *JSONViewSuite) TestGetInt() {
	val, ok := s.view.GetInt("message.chat.id")
	s.Require().True(ok)
	s.Assert().Equal(int64(-100), val)

	_, ok = s.view.GetInt("message.text")
	s.Assert().False(ok, "string is not a number")
}

func (s *JSONViewSuite) TestGetBool() {
	val, ok := s.view.GetBool("message.from.is_bot")
	s.Require().True(ok)
	s.Assert().False(val)

	_, ok = s.view.GetBool("message.from.id")
	s.Assert().False(ok)
}

func (s *JSONViewSuite) TestGetBytes() {
	val, ok := s.view.GetBytes("message.text")
	s.Require().True(ok)
	s.Assert().Equal(`"/start"`, string(val))

	_, ok = s.view.GetBytes("missing")
	s.Assert().False(ok)
}

func (s *JSONViewSuite) TestObject() {
	chat, ok := s.view.Object("message.chat")
	s.Require().True(ok)

	typ, ok := chat.GetString("type")
	s.Require().True(ok)
	s.Assert().Equal("group", typ)

	_, ok = s.view.Object("message.text")
	s.Assert().False(ok)
}

func (s *JSONViewSuite) TestArray() {
	entities, ok := s.view.Array("message.entities")
	s.Require().True(ok)
	s.Require().Len(entities, 2)

	typ, _ := entities[1].GetString("type")
	s.Assert().Equal("url", typ)

	_, ok = s.view.Array("message.chat")
	s.Assert().False(ok)
}
