// Package aggregator выполняет job на всех его устройствах.
//
// Для каждого устройства в порядке job'а:
//
//  1. lifecycle: running (устройство в карантине не запускается)
//  2. engine.Sequencer выполняет workflow
//  3. lifecycle: idle | error | quarantined
//  4. прогресс job'а = round(завершено / всего * 100)
//
// По умолчанию устройства выполняются последовательно. Concurrency > 1
// включает ограниченный параллелизм (errgroup.SetLimit); списки Succeeded
// и Failed всё равно сохраняют порядок устройств job'а.
//
// Отмена проверяется перед стартом каждого устройства и не прерывает
// уже выполняющиеся шаги.
package aggregator
