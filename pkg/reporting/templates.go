/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: templates.go
Description: HTML template for the fanalyzer dashboard.
*/

package reporting

// dashboardTemplate is the main HTML template for the dashboard
const dashboardTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif;
            background: #f0f2f5;
            color: #333;
        }

        .container { max-width: 1400px; margin: 0 auto; padding: 20px; }

        .header, .stat-card, .file-card {
            background: #fff;
            border-radius: 15px;
            padding: 25px;
            box-shadow: 0 8px 32px rgba(0, 0, 0, 0.1);
        }

        .header { text-align: center; margin-bottom: 30px; }
        .header h1 { color: #4a5568; font-size: 2.2rem; margin-bottom: 10px; }
        .header p { color: #718096; }

        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 20px;
            margin-bottom: 30px;
        }

        .stat-card .value { font-size: 2rem; font-weight: 700; color: #2d3748; }
        .stat-card .label { color: #718096; font-size: 0.9rem; text-transform: uppercase; }

        .file-card { margin-bottom: 20px; }
        .file-card h3 { color: #4a5568; margin-bottom: 10px; }
        .file-card p { margin-bottom: 5px; }

        table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #e2e8f0; }
        th { color: #4a5568; }
        .gap { color: #c53030; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>{{.Title}}</h1>
            <p>Generated on {{.Report.GeneratedAt.Format "January 2, 2006 at 3:04 PM"}} | Version: {{.Report.Version}}</p>
        </div>

        <div class="stats-grid">
            <div class="stat-card">
                <div class="value">{{.Report.Stats.Files}}</div>
                <div class="label">Files</div>
            </div>
            <div class="stat-card">
                <div class="value">{{bytes64 .Report.Stats.SeenBytes}}</div>
                <div class="label">Delivered</div>
            </div>
            <div class="stat-card">
                <div class="value">{{bytes64 .Report.Stats.MissingBytes}}</div>
                <div class="label">Missing</div>
            </div>
            <div class="stat-card">
                <div class="value">{{.Report.Stats.Events}}</div>
                <div class="label">Events</div>
            </div>
            <div class="stat-card">
                <div class="value">{{.Report.Stats.AttachFailures}}</div>
                <div class="label">Rejected Analyzers</div>
            </div>
        </div>

        {{range .Report.Files}}
        <div class="file-card">
            <h3>{{if .Info.Name}}{{.Info.Name}}{{else}}{{.Info.ID}}{{end}}</h3>
            <p><strong>Source:</strong> {{.Info.Source}} | <strong>ID:</strong> {{.Info.ID}}</p>
            <p><strong>Seen:</strong> {{bytes .Info.SeenBytes}} | <strong>Missing:</strong> {{bytes .Info.MissingBytes}} | <strong>End of file:</strong> {{if .Info.EndOfFile}}Yes{{else}}No{{end}}</p>
            <p><strong>Analyzers:</strong> {{detached .}}</p>
            {{range .Gaps}}
            <p class="gap">Gap at {{.Offset}}, {{bytes .Length}}</p>
            {{end}}
            {{if .Events}}
            <table>
                <tr><th>Analyzer</th><th>Event</th><th>Fields</th></tr>
                {{range .Events}}
                <tr><td>{{.Tag}}</td><td>{{.Name}}</td><td>{{fields .Fields}}</td></tr>
                {{end}}
            </table>
            {{end}}
        </div>
        {{end}}

        {{if .Report.Failures}}
        <div class="file-card">
            <h3>Rejected Analyzers</h3>
            <table>
                <tr><th>File</th><th>Analyzer</th><th>Error</th></tr>
                {{range .Report.Failures}}
                <tr><td>{{.FileID}}</td><td>{{.Analyzer}}</td><td>{{.Error}}</td></tr>
                {{end}}
            </table>
        </div>
        {{end}}
    </div>
</body>
</html>
`
