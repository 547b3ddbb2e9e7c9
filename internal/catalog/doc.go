// Package catalog загружает определения workflow из директории.
//
// Каждый файл (*.yaml, *.yml, *.json) содержит один workflow:
//
//	id: play-media
//	timeoutMs: 600000
//	steps:
//	  - id: open
//	    action: script
//	    params: {script: open-app, params: {app: $app}}
//	    retry: {attempts: 3, delayMs: 500, backoff: exponential}
//	  - id: pause
//	    action: wait
//	    params: {duration: 5000}
//	  - id: done
//	    action: system
//	    params: {name: mark-complete}
//
// Набор загружается при старте воркера и заменяется целиком при
// перезагрузке (SIGHUP или расписание workflows-reload-cron).
package catalog
