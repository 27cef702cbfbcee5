package stream_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"searchtweets/pkg/api"
	"searchtweets/pkg/logger"
	"searchtweets/pkg/session"
	"searchtweets/pkg/stream"
)

func ExampleCollect() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("next_token") == "" {
			fmt.Fprint(w, `{"data":[{"id":"1","author_id":"9"}],"includes":{"users":[{"id":"9","username":"jack"}]},"meta":{"next_token":"n1"}}`)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"2","author_id":"9"}],"includes":{"users":[{"id":"9","username":"jack"}]},"meta":{}}`)
	}))
	defer srv.Close()

	msgs, err := stream.Collect(context.Background(), stream.Config{
		Endpoint:   srv.URL + "/2/tweets/search/recent",
		Payload:    api.Params{"query": "from:jack", "expansions": "author_id"},
		Credential: session.Credential{BearerToken: "token"},
		MaxItems:   10,
	},
		stream.WithLogger(logger.NewNopLogger()),
		stream.WithSessionOptions(session.WithHTTPClientFactory(srv.Client)),
	)
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, m := range msgs {
		author := m.Data["author"].(map[string]interface{})
		fmt.Println(m.Data["id"], author["username"])
	}
	// Output:
	// 1 jack
	// 2 jack
}
