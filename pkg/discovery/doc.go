// Package discovery advertises and finds upload servers over mDNS/DNS-SD.
//
// A server registers one instance of the "_secupload._tcp" service in the
// "local" domain. The TXT record carries the protocol version, the
// key-exchange group mode and the ciphers the server accepts, so a client
// can pick a server before connecting.
//
// # TXT Record
//
//	ver=1
//	grp=generate|modp2
//	ciphers=ChaCha20,AES
//
// The browser aggregates entries by instance name: addresses seen on
// several interfaces are merged into one UploadService, and an instance
// disappears once all of its addresses have been withdrawn.
package discovery
