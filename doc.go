/*
Copyright (c) 2013-2018 The btcsuite developers
Copyright (c) 2015-2016 The Decred developers
Use of this source code is governed by an ISC
license that can be found in the LICENSE file.

Netnode is a p2p network node. It accepts connections from its peers, reuses
or establishes a connection for every message it sends, and answers pings.

Usage:

	netnode --port=<port> [OPTIONS]

For an up-to-date help message:

	netnode --help

The long form of all option flags (except -C) can be specified in a configuration
file that is automatically parsed when netnode starts up. By default, the
configuration file is located at ~/.netnode/netnode.conf on POSIX-style operating
systems and %LOCALAPPDATA%\netnode\netnode.conf on Windows. The -C (--configfile)
flag can be used to override this location.

Peers given with --connect are pinged at startup and every two minutes after
that. Outbound connections go through the SOCKS5 proxy given with --proxy, and
connections to .onion peers through the proxy given with --onion.
*/
package main
