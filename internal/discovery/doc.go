// Package discovery advertises and finds fieldsync servers over mDNS.
//
// A server registers itself as a "_fieldsync._tcp" service with TXT records
// describing how to reach the WebSocket endpoint:
//
//	path=/ws      WebSocket path
//	tls=0|1       whether clients must use wss://
//	version=1.0.0 server build version
//
// # Usage Example
//
//	services, err := discovery.Scan(ctx, 3*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, svc := range services {
//	    fmt.Println(svc.Instance, svc.URL())
//	}
//
// Multicast traffic must be allowed on the local network for discovery to
// work; browsing simply returns no services otherwise.
package discovery
