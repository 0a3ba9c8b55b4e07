package nginx

import "text/template"

var vhostTemplate = template.Must(template.New("vhost").Parse(vhostTemplateText))

const vhostTemplateText = `# Managed by LalaPanel - do not edit manually
{{- if .SSL}}
server {
    listen 80;
    listen [::]:80;
    server_name {{.Domain}} www.{{.Domain}};

    location ^~ /.well-known/acme-challenge/ {
        root {{.HtdocsDir}};
    }

    location / {
        return 301 https://{{.Domain}}$request_uri;
    }
}
{{- end}}

server {
{{- if .SSL}}
    listen 443 ssl;
    listen [::]:443 ssl;
    http2 on;
{{- else}}
    listen 80;
    listen [::]:80;
{{- end}}
    server_name {{.Domain}} www.{{.Domain}};

    root {{.HtdocsDir}};
    index index.php index.html;

{{- if .SSL}}

    ssl_certificate {{.CertPath}};
    ssl_certificate_key {{.KeyPath}};
    ssl_protocols TLSv1.2 TLSv1.3;
    ssl_prefer_server_ciphers on;
{{- end}}

    access_log {{.AccessLog}};
    error_log {{.ErrorLog}};

    client_max_body_size {{.UploadMB}}m;

    location ^~ /.well-known/acme-challenge/ {
        root {{.HtdocsDir}};
    }

    location / {
        try_files $uri $uri/ /index.php?$query_string;
    }

    location ~ \.php$ {
        include snippets/fastcgi-php.conf;
        fastcgi_pass unix:{{.PHPSocket}};
        fastcgi_read_timeout {{.MaxExecSecs}}s;
        fastcgi_param PHP_VALUE "upload_max_filesize={{.UploadMB}}M
post_max_size={{.UploadMB}}M
memory_limit={{.MemoryMB}}M
max_execution_time={{.MaxExecSecs}}
upload_tmp_dir={{.TmpDir}}";
    }

    location ~ /\.(?!well-known) {
        deny all;
    }
}
`
