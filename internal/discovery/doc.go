// Package discovery advertises the Web Thing server over mDNS so gateways
// on the local network find it without configuration.
//
// The service type is _webthing._tcp in the local. domain, with a TXT
// record path=/ pointing at the Thing description.
package discovery
