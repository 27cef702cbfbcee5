// Package stream drives paginated search requests.
//
// A Stream opens one session, issues the first request with the configured
// payload, and then follows next-page tokens until the token runs out or
// the item or request cap is reached. Messages are pulled one at a time
// with Next (or ranged over with All); a new page is only requested once
// the previous page's messages have all been handed out.
//
//	s := stream.New(stream.Config{
//	    Endpoint:   "https://api.twitter.com/2/tweets/search/recent",
//	    Payload:    api.Params{"query": "snow has:media", "max_results": 100},
//	    Credential: session.Credential{BearerToken: token},
//	    MaxItems:   500,
//	})
//	for msg, err := range s.All(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(msg.Data["id"])
//	}
//
// The session is closed whenever the stream ends, whether it finished,
// hit a cap, failed, or the caller stopped early.
package stream
