package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeHistoryShapes(t *testing.T) {
	cases := map[string]struct {
		body string
		want []string
	}{
		"messages key": {`{"messages":[{"sender_id":1,"content":"a"},{"sender_id":2,"content":"b"}]}`, []string{"a", "b"}},
		"data key":     {`{"data":[{"sender_id":1,"content":"c"}]}`, []string{"c"}},
		"bare array":   {`[{"sender_id":1,"content":"d"},{"sender_id":1,"content":"e"}]`, []string{"d", "e"}},
		"empty body":   {``, nil},
		"null":         {`null`, nil},
		"other key":    {`{"items":[{"content":"x"}]}`, nil},
		"garbage":      {`not json`, nil},
		"empty list":   {`{"messages":[]}`, nil},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := DecodeHistory([]byte(tc.body))
			require.NotNil(t, got)
			contents := make([]string, 0, len(got))
			for _, m := range got {
				contents = append(contents, m.Content)
			}
			if tc.want == nil {
				require.Empty(t, contents)
				return
			}
			require.Equal(t, tc.want, contents)
		})
	}
}
