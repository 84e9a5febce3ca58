/*Package obslink implements the shared connection/session layer used by a
family of observatory device drivers: serial-connected power boxes and
focusers, a guiding-application network client, and a file-based safety
sensor. All of these drivers share the same hard problem: one physical
transport (a serial port or a TCP socket) has to be shared safely between
concurrently issued foreground commands and a background polling loop, has to
survive being connected and disconnected by several logical devices without
closing the wire out from under a sibling, and has to correlate asynchronous
request/response traffic on a duplex stream that may also emit unsolicited
messages.

The core pieces are:

  Transport  - a line-oriented duplex stream opened from a dial string
               (serial://<device>:<baud> or tcp://<host>:<port>) into
               independent read and write halves.
  Manager    - reference-counted transport lifecycle, handshake
               orchestration, a serialized command channel with bounded
               stale-response discard, a background polling supervisor, and
               cached device state with time-windowed rolling means.
  Link       - the network-client variant: a dedicated reader pump,
               correlation of responses to pending requests by numeric id,
               lifecycle events, and a cancellable bounded reconnect loop.

Device vocabularies are plug-in codecs: each driver supplies its Commands
(see the ppba and qfocuser subpackages) or a Demux (see phd2), and the core
stays agnostic to what is actually on the other end of the wire.

Error Handling

Neither a Manager nor a Link tries to hide connection loss from callers.
Foreground command errors are returned to the caller, who has a better idea
of what to do; a failed poll tick is logged and retried naturally on the next
tick; end of stream always tears down the cached connected state and, on a
Link with auto-reconnect enabled, starts the reconnect supervisor.
*/
package obslink

/*
MIT License

Copyright (c) 2024-2026 the obslink authors

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/
