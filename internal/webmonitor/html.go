package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Skeleton Measurement Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { margin: 0; font-family: sans-serif; background: #111; color: #eee; }
        .app { max-width: 1400px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 16px; }
        .title { font-size: 22px; font-weight: bold; }
        .badge { padding: 4px 10px; border-radius: 10px; background: #444; font-size: 12px; }
        .badge.live { background: #1b5e20; }
        .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 16px; }
        .panel { background: #1d1d1d; border-radius: 8px; padding: 12px; }
        .panel h2 { margin: 0 0 8px 0; font-size: 16px; }
        .panel img { width: 100%; height: auto; display: block; background: #000; }
        .label { font-size: 20px; font-family: monospace; color: #ff5252; min-height: 28px; }
        .stats { display: grid; grid-template-columns: repeat(4, 1fr); gap: 8px; margin-top: 8px; }
        .stat { background: #252525; padding: 8px; border-radius: 6px; }
        .stat-label { display: block; font-size: 11px; color: #aaa; }
        .stat-value { font-size: 18px; }
        table { width: 100%; border-collapse: collapse; font-size: 13px; margin-top: 8px; }
        td, th { padding: 4px; text-align: left; border-bottom: 1px solid #333; }
        tr.selected { color: #69f0ae; }
        button { background: #333; color: #eee; border: 1px solid #555; border-radius: 4px; padding: 6px 12px; cursor: pointer; }
        button:hover { background: #444; }
        .controls { display: flex; gap: 8px; margin-top: 8px; align-items: center; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">Skeleton Measurement Monitor</div>
            <span class="badge" id="status-badge">Waiting for data...</span>
        </div>

        <div class="grid">
            <div class="panel">
                <h2>Skeleton overlay</h2>
                <img id="overlay" src="/stream" alt="Skeleton overlay stream">
            </div>
            <div class="panel">
                <h2>Foreground</h2>
                <img id="foreground" src="/stream/foreground" alt="Foreground stream">
            </div>

            <div class="panel" style="grid-column: span 2;">
                <h2>Measurement</h2>
                <div class="label" id="measurement">--</div>
                <div class="controls">
                    <button type="button" id="btn-measure">Measure</button>
                    <button type="button" id="btn-record">Start recording</button>
                    <span id="record-status"></span>
                </div>
                <div class="stats">
                    <div class="stat"><span class="stat-label">Tick</span><span class="stat-value" id="tick">--</span></div>
                    <div class="stat"><span class="stat-label">Selected</span><span class="stat-value" id="selected">none</span></div>
                    <div class="stat"><span class="stat-label">Latency</span><span class="stat-value" id="latency">--</span></div>
                    <div class="stat"><span class="stat-label">Feed</span><span class="stat-value" id="feed">SSE</span></div>
                </div>
                <table>
                    <thead><tr><th>Slot</th><th>Tracking id</th><th>State</th><th>Position (m)</th></tr></thead>
                    <tbody id="subjects"></tbody>
                </table>
            </div>
        </div>
    </div>

    <script>
    (function () {
        const badge = document.getElementById('status-badge');
        let recording = false;

        function render(status) {
            badge.textContent = 'Session ' + (status.session_id || '').slice(0, 8);
            badge.classList.add('live');
            document.getElementById('tick').textContent = status.tick;
            document.getElementById('selected').textContent = status.selected ? status.selected_id : 'none';
            document.getElementById('latency').textContent = status.latency_ms.toFixed(1) + ' ms';
            document.getElementById('measurement').textContent =
                status.measurement ? status.measurement.label : '--';

            const rows = (status.subjects || []).map(function (s) {
                const cls = status.selected && s.tracking_id === status.selected_id ? ' class="selected"' : '';
                const pos = s.position.map(function (v) { return v.toFixed(2); }).join(', ');
                return '<tr' + cls + '><td>' + s.slot + '</td><td>' + s.tracking_id + '</td><td>' +
                    s.state + '</td><td>' + pos + '</td></tr>';
            });
            document.getElementById('subjects').innerHTML = rows.join('');
        }

        // Status over SSE until the WebRTC data channel opens
        let sse = new EventSource('/api/status/stream');
        sse.onmessage = function (e) { render(JSON.parse(e.data)); };

        async function connectWebRTC() {
            const pc = new RTCPeerConnection({ iceServers: [] });
            const channel = pc.createDataChannel('measurements', { negotiated: true, id: 0 });
            channel.onopen = function () {
                document.getElementById('feed').textContent = 'WebRTC';
                if (sse) { sse.close(); sse = null; }
            };
            channel.onmessage = function (e) { render(JSON.parse(e.data)); };
            channel.onclose = function () {
                document.getElementById('feed').textContent = 'SSE';
                if (!sse) {
                    sse = new EventSource('/api/status/stream');
                    sse.onmessage = function (e) { render(JSON.parse(e.data)); };
                }
            };

            const offer = await pc.createOffer();
            await pc.setLocalDescription(offer);
            await new Promise(function (resolve) {
                if (pc.iceGatheringState === 'complete') { resolve(); return; }
                pc.onicegatheringstatechange = function () {
                    if (pc.iceGatheringState === 'complete') { resolve(); }
                };
            });

            const resp = await fetch('/api/webrtc/offer', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(pc.localDescription)
            });
            if (!resp.ok) { pc.close(); return; }
            await pc.setRemoteDescription(await resp.json());
        }
        connectWebRTC().catch(function (err) { console.warn('WebRTC unavailable', err); });

        document.getElementById('btn-measure').onclick = async function () {
            const resp = await fetch('/api/measurement');
            const body = await resp.json();
            document.getElementById('measurement').textContent = resp.ok ? body.label : body.error;
        };

        document.getElementById('btn-record').onclick = async function () {
            const path = recording ? '/api/recording/stop' : '/api/recording/start';
            const resp = await fetch(path, { method: 'POST' });
            const body = await resp.json();
            if (!resp.ok) {
                document.getElementById('record-status').textContent = body.error;
                return;
            }
            recording = body.status === 'recording';
            this.textContent = recording ? 'Stop recording' : 'Start recording';
            document.getElementById('record-status').textContent = body.file;
        };
    })();
    </script>
</body>
</html>
`
